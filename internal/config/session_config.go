package config

import "time"

type SessionConfig interface {
	GetRefreshInterval() time.Duration
	GetIdleTimeout() time.Duration
	GetWarningWindow() time.Duration
	GetAutoRefresh() bool
	GetTrackActivity() bool
}

type Session struct {
	RefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"5m"`
	IdleTimeout     time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	WarningWindow   time.Duration `env:"SESSION_WARNING_WINDOW" envDefault:"2m"`
	AutoRefresh     bool          `env:"SESSION_AUTO_REFRESH" envDefault:"true"`
	TrackActivity   bool          `env:"SESSION_TRACK_ACTIVITY" envDefault:"true"`
}

var _ SessionConfig = Session{}

func (s Session) GetRefreshInterval() time.Duration {
	return s.RefreshInterval
}

func (s Session) GetIdleTimeout() time.Duration {
	return s.IdleTimeout
}

func (s Session) GetWarningWindow() time.Duration {
	return s.WarningWindow
}

func (s Session) GetAutoRefresh() bool {
	return s.AutoRefresh
}

func (s Session) GetTrackActivity() bool {
	return s.TrackActivity
}
