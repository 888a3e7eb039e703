// Package settings exposes the clinic policy as an injected provider with an
// explicit load-or-default contract, so validators stay pure and testable.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clinicbook/internal/db"
	"clinicbook/internal/model"
)

const cacheKey = "clinic:settings"

// ErrInvalidSettings marks settings rejected by validation, as opposed to a
// storage failure while persisting them.
var ErrInvalidSettings = errors.New("invalid clinic settings")

// Store is the persistence contract for clinic settings.
type Store interface {
	GetClinicSettings(ctx context.Context) (*model.ClinicSettings, error)
	SaveClinicSettings(ctx context.Context, s *model.ClinicSettings) error
}

// Provider serves the clinic settings singleton with optional redis caching.
// A corrupt persisted row degrades to the hard-coded defaults: availability
// of the policy takes precedence over strict validation of stored state.
type Provider struct {
	store    Store
	redis    *redis.Client
	cacheTTL time.Duration
	log      *zerolog.Logger
}

// NewProvider creates a settings provider backed by store.
func NewProvider(store Store, log *zerolog.Logger) *Provider {
	return &Provider{store: store, log: log}
}

// UseRedisCache enables read-through caching of the settings row.
func (p *Provider) UseRedisCache(client *redis.Client, ttl time.Duration) {
	p.redis = client
	p.cacheTTL = ttl
}

// Get returns the current settings, creating defaults lazily when absent and
// falling back to defaults when the stored row cannot be decoded.
func (p *Provider) Get(ctx context.Context) (*model.ClinicSettings, error) {
	if cached := p.readCache(ctx); cached != nil {
		return cached, nil
	}

	s, err := p.store.GetClinicSettings(ctx)
	if err != nil {
		if errors.Is(err, db.ErrCorruptSettings) {
			p.log.Warn().Err(err).Msg("persisted clinic settings are corrupt; serving defaults")
			return model.DefaultClinicSettings(), nil
		}
		return nil, fmt.Errorf("load clinic settings: %w", err)
	}

	p.writeCache(ctx, s)
	return s, nil
}

// Update replaces the settings wholesale and invalidates the cache.
func (p *Provider) Update(ctx context.Context, s *model.ClinicSettings) error {
	s.Normalize()
	if err := validate(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := p.store.SaveClinicSettings(ctx, s); err != nil {
		return fmt.Errorf("save clinic settings: %w", err)
	}
	p.invalidate(ctx)
	return nil
}

// validate rejects structurally impossible settings before persisting. Closed
// days are not validated; their time fields are meaningless.
func validate(s *model.ClinicSettings) error {
	if s.AdvanceBookingDays < 1 {
		return fmt.Errorf("advance_booking_days must be at least 1")
	}
	if s.MinBookingHours < 0 {
		return fmt.Errorf("min_booking_hours must not be negative")
	}
	if s.MaxBookingDays < 1 {
		return fmt.Errorf("max_booking_days must be at least 1")
	}
	for _, d := range s.Hours {
		if !d.IsOpen {
			continue
		}
		if err := validateDay(d); err != nil {
			return fmt.Errorf("day %d: %w", d.DayOfWeek, err)
		}
	}
	return nil
}

func validateDay(d model.DayHours) error {
	open, err := parseOptional(d.OpenTime)
	if err != nil {
		return err
	}
	closeAt, err := parseOptional(d.CloseTime)
	if err != nil {
		return err
	}
	if d.OpenTime != "" && d.CloseTime != "" && closeAt <= open {
		return fmt.Errorf("close_time must be after open_time")
	}

	if (d.LunchBreakStart == "") != (d.LunchBreakEnd == "") {
		return fmt.Errorf("lunch break requires both start and end")
	}
	if d.HasLunch() {
		lunchStart, err := parseOptional(d.LunchBreakStart)
		if err != nil {
			return err
		}
		lunchEnd, err := parseOptional(d.LunchBreakEnd)
		if err != nil {
			return err
		}
		if lunchEnd <= lunchStart {
			return fmt.Errorf("lunch_break_end must be after lunch_break_start")
		}
		if d.OpenTime != "" && lunchStart < open {
			return fmt.Errorf("lunch break must start after opening")
		}
		if d.CloseTime != "" && lunchEnd > closeAt {
			return fmt.Errorf("lunch break must end before closing")
		}
	}
	return nil
}

func parseOptional(clock string) (int, error) {
	if clock == "" {
		return 0, nil
	}
	return model.ParseClock(clock)
}

func (p *Provider) readCache(ctx context.Context) *model.ClinicSettings {
	if p.redis == nil || p.cacheTTL <= 0 {
		return nil
	}
	val, err := p.redis.Get(ctx, cacheKey).Result()
	if err != nil {
		return nil
	}
	var s model.ClinicSettings
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil
	}
	return &s
}

func (p *Provider) writeCache(ctx context.Context, s *model.ClinicSettings) {
	if p.redis == nil || p.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := p.redis.Set(ctx, cacheKey, data, p.cacheTTL).Err(); err != nil {
		p.log.Debug().Err(err).Msg("settings cache write failed")
	}
}

func (p *Provider) invalidate(ctx context.Context) {
	if p.redis == nil {
		return
	}
	if err := p.redis.Del(ctx, cacheKey).Err(); err != nil {
		p.log.Debug().Err(err).Msg("settings cache invalidation failed")
	}
}
