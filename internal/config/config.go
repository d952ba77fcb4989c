package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	SQLitePath   string
	ElasticURL   string
	CurrentEvent string
	PaidEvents   []string
	HTTPAddr     string
}

func FromEnv() (Config, error) {
	var c Config

	c.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if c.SQLitePath == "" {
		c.SQLitePath = "checkin.db"
	}

	c.ElasticURL = strings.TrimSpace(os.Getenv("ELASTIC_URL"))
	if c.ElasticURL == "" {
		c.ElasticURL = "http://localhost:9200"
	}

	c.CurrentEvent = strings.TrimSpace(os.Getenv("CURRENT_EVENT"))
	if c.CurrentEvent == "" {
		return c, fmt.Errorf("CURRENT_EVENT is empty")
	}

	for _, name := range strings.Split(os.Getenv("PAID_EVENTS"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			c.PaidEvents = append(c.PaidEvents, name)
		}
	}

	c.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}

	return c, nil
}

// PaidSet returns the paid events as a lookup set.
func (c Config) PaidSet() map[string]bool {
	set := make(map[string]bool, len(c.PaidEvents))
	for _, e := range c.PaidEvents {
		set[e] = true
	}
	return set
}
