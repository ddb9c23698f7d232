package config

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultDebounce batches the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Watch re-decodes the config file whenever it changes and hands the result
// to onChange. Events within debounce of each other are coalesced. Invalid
// edits are logged and skipped. Requires a config file to have been read.
func Watch(v *viper.Viper, debounce time.Duration, logger *log.Logger, onChange func(*Config)) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var mu sync.Mutex
	var timer *time.Timer

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			c, err := Decode(v)
			if err != nil {
				logger.Printf("Ignoring invalid config change in %s: %v", e.Name, err)
				return
			}
			logger.Printf("Config reloaded from %s", e.Name)
			onChange(c)
		})
	})
	v.WatchConfig()
}
