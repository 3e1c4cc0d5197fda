package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr         string
	JWTIssuer        string
	JWTSecret        string
	JWTTTL           time.Duration
	WebSocketOrigin  string
	Mode             string
	StartingBalance  decimal.Decimal
	DefaultLeverage  decimal.Decimal
	MaintenanceRate  decimal.Decimal
	TickInterval     time.Duration
	SnapshotDSN      string
	SnapshotInterval time.Duration
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.Mode = strings.ToLower(strings.TrimSpace(os.Getenv("APP_MODE")))
	if c.Mode == "" {
		c.Mode = "development"
	}
	if c.Mode != "development" && c.Mode != "production" {
		return c, errors.New("invalid APP_MODE: use development or production")
	}

	starting := os.Getenv("STARTING_BALANCE")
	if starting == "" {
		starting = "100000"
	}
	d, err := decimal.NewFromString(starting)
	if err != nil || !d.GreaterThan(decimal.Zero) {
		return c, errors.New("invalid STARTING_BALANCE")
	}
	c.StartingBalance = d

	leverage := os.Getenv("DEFAULT_LEVERAGE")
	if leverage == "" {
		leverage = "1"
	}
	lev, err := decimal.NewFromString(leverage)
	if err != nil || !lev.GreaterThan(decimal.Zero) {
		return c, errors.New("invalid DEFAULT_LEVERAGE")
	}
	c.DefaultLeverage = lev

	mmr := os.Getenv("MAINTENANCE_MARGIN_RATE")
	if mmr == "" {
		mmr = "0.005"
	}
	rate, err := decimal.NewFromString(mmr)
	if err != nil || rate.IsNegative() {
		return c, errors.New("invalid MAINTENANCE_MARGIN_RATE")
	}
	c.MaintenanceRate = rate

	tickInterval := os.Getenv("TICK_INTERVAL")
	if tickInterval == "" {
		tickInterval = "250ms"
	}
	ti, err := time.ParseDuration(tickInterval)
	if err != nil {
		return c, errors.New("invalid TICK_INTERVAL")
	}
	c.TickInterval = ti

	c.SnapshotDSN = os.Getenv("SNAPSHOT_DSN")
	snapInterval := os.Getenv("SNAPSHOT_INTERVAL")
	if snapInterval == "" {
		snapInterval = "30s"
	}
	si, err := time.ParseDuration(snapInterval)
	if err != nil {
		return c, errors.New("invalid SNAPSHOT_INTERVAL")
	}
	c.SnapshotInterval = si

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
