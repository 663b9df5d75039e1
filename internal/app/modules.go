package app

import (
	"github.com/vk/ctxbridge/internal/messenger"
	"github.com/vk/ctxbridge/internal/options"
	"github.com/vk/ctxbridge/internal/request"
	"github.com/vk/ctxbridge/modules/fetch"
	optionsmod "github.com/vk/ctxbridge/modules/options"
	"github.com/vk/ctxbridge/modules/ping"
)

// coreModules is the definitive list of the command modules served by the
// host.
func coreModules(store *options.Store, client *request.Client, cfg *Config) []messenger.Module {
	return []messenger.Module{
		&ping.Module{},
		&optionsmod.Module{Store: store},
		&fetch.Module{
			Client:     client,
			AllowLocal: cfg.AllowLocalFetch,
			Timeout:    cfg.FetchTimeout,
		},
	}
}
