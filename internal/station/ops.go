package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/wxrelay/internal/aprsis"
	"github.com/chrissnell/wxrelay/internal/report"
	"github.com/chrissnell/wxrelay/pkg/aprs"
)

// Wind is a wind reading. Gust is optional; a nil gust clears the stored one.
type Wind struct {
	Angle float64
	Speed float64
	Gust  *float64
	Units string
}

// Settings changes connection settings. Nil fields are left alone.
type Settings struct {
	Server     *string `json:"server,omitempty"`
	Port       *int    `json:"port,omitempty"`
	Callsign   *string `json:"callsign,omitempty"`
	Passcode   *string `json:"passcode,omitempty"`
	Filter     *string `json:"filter,omitempty"`
	TxInterval *int    `json:"interval,omitempty"`
}

// ReportStatus describes the last transmitted weather report.
type ReportStatus struct {
	Time    time.Time `json:"time"`
	Payload string    `json:"payload"`
	Error   string    `json:"error,omitempty"`
}

// Status is a point-in-time view of a station.
type Status struct {
	Name              string             `json:"name"`
	Kind              Kind               `json:"kind"`
	Policy            string             `json:"policy"`
	Connection        string             `json:"connection"`
	Session           string             `json:"session,omitempty"`
	Server            string             `json:"server"`
	Callsign          string             `json:"callsign"`
	TxInterval        int                `json:"interval"`
	Available         bool               `json:"available"`
	UnavailableReason string             `json:"unavailable_reason,omitempty"`
	Values            map[string]float64 `json:"values"`
	Rain              report.Totals      `json:"rain"`
	RainRate          *float64           `json:"rain_rate"`
	PacketsReceived   uint64             `json:"packets_received"`
	LastReport        *ReportStatus      `json:"last_report,omitempty"`
}

// UpdateTemperature sets the temperature in °C.
func (s *Station) UpdateTemperature(ctx context.Context, celsius float64) error {
	if err := finite("temperature", celsius); err != nil {
		return err
	}
	return s.setValue(ctx, MeasureTemperature, celsius)
}

// UpdateHumidity sets the relative humidity in percent.
func (s *Station) UpdateHumidity(ctx context.Context, percent float64) error {
	if err := finite("humidity", percent); err != nil {
		return err
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: humidity %v outside 0-100", ErrInvalidInput, percent)
	}
	return s.setValue(ctx, MeasureHumidity, percent)
}

// UpdatePressure sets the barometric pressure in hPa.
func (s *Station) UpdatePressure(ctx context.Context, hpa float64) error {
	if err := finite("pressure", hpa); err != nil {
		return err
	}
	if hpa <= 0 {
		return fmt.Errorf("%w: pressure %v must be positive", ErrInvalidInput, hpa)
	}
	return s.setValue(ctx, MeasurePressure, hpa)
}

// UpdateWind sets wind direction, speed and gust, normalising speeds to km/h.
func (s *Station) UpdateWind(ctx context.Context, w Wind) error {
	for name, v := range map[string]float64{"wind angle": w.Angle, "wind speed": w.Speed} {
		if err := finite(name, v); err != nil {
			return err
		}
	}
	speed, err := WindToKmh(w.Speed, w.Units)
	if err != nil {
		return err
	}
	var gust *float64
	if w.Gust != nil {
		if err := finite("wind gust", *w.Gust); err != nil {
			return err
		}
		g, err := WindToKmh(*w.Gust, w.Units)
		if err != nil {
			return err
		}
		gust = &g
	}
	if w.Angle < 0 {
		return fmt.Errorf("%w: wind angle %v is negative", ErrInvalidInput, w.Angle)
	}
	// north is sent as 360; 000 reads as calm
	angle := float64(int(w.Angle+0.5) % 360)
	if angle == 0 {
		angle = 360
	}

	return s.do(ctx, func() error {
		s.live.Set(MeasureWindAngle, angle)
		s.live.Set(MeasureWindStrength, speed)
		if gust != nil {
			s.live.Set(MeasureGustStrength, *gust)
		} else {
			s.live.Clear(MeasureGustStrength)
		}
		s.countUpdate("wind")
		return nil
	})
}

// UpdateRain records a rain amount measured now.
func (s *Station) UpdateRain(ctx context.Context, amount float64, units string) error {
	if err := finite("rain", amount); err != nil {
		return err
	}
	if amount < 0 {
		return fmt.Errorf("%w: rain amount %v is negative", ErrInvalidInput, amount)
	}
	mm, err := RainToMillimeters(amount, units)
	if err != nil {
		return err
	}

	return s.do(ctx, func() error {
		return s.recordRain(ctx, mm)
	})
}

func (s *Station) recordRain(ctx context.Context, mm float64) error {
	now := s.clock.Now()
	// a reading in second 0 must not be swept away by this minute's purge
	if now.Second() == 0 && s.lastTick.Before(now.Truncate(time.Minute)) {
		s.purgeIfDue(ctx, now)
	}
	if err := s.rain.Record(ctx, mm, now); err != nil {
		return fmt.Errorf("unable to record rain: %w", err)
	}
	s.countUpdate("rain")
	s.publishRain()
	return nil
}

// Status returns the station status.
func (s *Station) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() error {
		st = s.status()
		return nil
	})
	return st, err
}

// Packets returns the most recently received packets, oldest first.
func (s *Station) Packets(ctx context.Context) ([]aprs.Packet, error) {
	var out []aprs.Packet
	err := s.do(ctx, func() error {
		out = append([]aprs.Packet(nil), s.packets...)
		return nil
	})
	return out, err
}

// UpdateSettings applies connection settings. A change to the server,
// callsign, passcode or filter reconnects a persistent session; a burst
// station picks them up on its next report.
func (s *Station) UpdateSettings(ctx context.Context, set Settings) error {
	if set.TxInterval != nil && (*set.TxInterval < 1 || 60%*set.TxInterval != 0) {
		return fmt.Errorf("%w: interval %d must divide 60", ErrInvalidInput, *set.TxInterval)
	}
	if set.Port != nil && (*set.Port < 1 || *set.Port > 65535) {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidInput, *set.Port)
	}

	return s.do(ctx, func() error {
		reconnect := false
		if set.Server != nil || set.Port != nil {
			cfg := s.client.Config()
			host, port := cfg.Host, cfg.Port
			if set.Server != nil {
				host = *set.Server
			}
			if set.Port != nil {
				port = *set.Port
			}
			s.logger.Infof("settings: server: %s:%d", host, port)
			s.client.SetServer(host, port)
			reconnect = true
		}
		if set.Callsign != nil {
			s.logger.Infof("settings: callsign: %s", *set.Callsign)
			s.client.SetCallsign(*set.Callsign)
			reconnect = true
		}
		if set.Passcode != nil {
			s.logger.Info("settings: passcode changed")
			s.client.SetPasscode(*set.Passcode)
			reconnect = true
		}
		if set.Filter != nil {
			s.logger.Infof("settings: filter: %s", *set.Filter)
			s.client.SetFilter(*set.Filter)
			reconnect = true
		}
		if set.TxInterval != nil && s.cfg.Kind != KindRemote {
			s.logger.Infof("settings: interval: %d", *set.TxInterval)
			s.cfg.TxInterval = *set.TxInterval
		}

		if !reconnect || s.cfg.Kind == KindWXStation {
			return nil
		}
		s.logger.Info("connection settings changed, reconnecting")
		if err := s.client.Reconnect(s.ctx); err != nil && !errors.Is(err, aprsis.ErrBusy) {
			return fmt.Errorf("unable to reconnect: %w", err)
		}
		return nil
	})
}

func (s *Station) setValue(ctx context.Context, name string, v float64) error {
	return s.do(ctx, func() error {
		s.live.Set(name, v)
		s.countUpdate(name)
		return nil
	})
}

func (s *Station) countUpdate(measure string) {
	if s.metrics != nil {
		s.metrics.SensorUpdates.WithLabelValues(s.cfg.Name, measure).Inc()
	}
}

func (s *Station) status() Status {
	cfg := s.client.Config()
	values := s.live.All()

	totals := report.FreezeTotals(s.rain)
	for name, v := range map[string]*float64{
		MeasureRainLastHour: totals.LastHour,
		MeasureRain24Hours:  totals.Last24Hours,
		MeasureRainToday:    totals.Today,
	} {
		if v != nil {
			values[name] = *v
		}
	}
	var rate *float64
	if r, ok := s.rain.Rate(); ok {
		rate = &r
		values[MeasureRain] = r
	}

	var last *ReportStatus
	if s.lastReport != nil {
		lr := *s.lastReport
		last = &lr
	}

	return Status{
		Name:              s.cfg.Name,
		Kind:              s.cfg.Kind,
		Policy:            s.policy.Name(),
		Connection:        s.client.State().String(),
		Session:           s.client.Session(),
		Server:            cfg.Address(),
		Callsign:          cfg.Callsign,
		TxInterval:        s.cfg.TxInterval,
		Available:         s.available,
		UnavailableReason: s.unavailableReason,
		Values:            values,
		Rain:              totals,
		RainRate:          rate,
		PacketsReceived:   s.packetsReceived,
		LastReport:        last,
	}
}
