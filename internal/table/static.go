/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package table

import (
	"bufio"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/nextmx/resolved/framework/config"
	"github.com/nextmx/resolved/framework/hooks"
	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/framework/module"
)

const StaticModName = "table.static"

// Static is a key:value table backed by inline config entries, one or
// more flat files, or both. Files are polled for changes on a timer
// rather than watched, the same strategy the legacy alias-file rewriter
// used; an explicit reload can also be requested through the shutdown/
// reload hook bus.
type Static struct {
	instName string
	files    []string
	inline   map[string]string

	mu     sync.RWMutex
	values map[string]string
	stamp  time.Time

	stopReloader chan struct{}
	forceReload  chan struct{}
	log          log.Logger
}

func NewStatic(_, instName string, _, _ []string) (module.Module, error) {
	return &Static{
		instName:     instName,
		inline:       map[string]string{},
		values:       map[string]string{},
		stopReloader: make(chan struct{}),
		forceReload:  make(chan struct{}),
		log:          log.Logger{Name: StaticModName},
	}, nil
}

func (s *Static) Name() string         { return StaticModName }
func (s *Static) InstanceName() string { return s.instName }

func (s *Static) Init(cfg *config.Map) error {
	cfg.Bool("debug", true, s.log.Debug, &s.log.Debug)
	cfg.StringList("files", false, false, nil, &s.files)
	cfg.Callback("entry", func(_ *config.Map, node config.Node) error {
		if len(node.Args) != 2 {
			return config.NodeErr(node, "entry requires exactly a key and a value")
		}
		s.inline[strings.ToLower(node.Args[0])] = node.Args[1]
		return nil
	})
	if _, err := cfg.Process(); err != nil {
		return err
	}

	if err := s.reload(); err != nil {
		return err
	}

	if len(s.files) > 0 {
		go s.reloader()
		hooks.AddHook(hooks.EventReload, func() {
			s.forceReload <- struct{}{}
		})
	}

	return nil
}

var staticReloadInterval = 15 * time.Second

func (s *Static) reload() error {
	merged := make(map[string]string, len(s.inline))
	for k, v := range s.inline {
		merged[k] = v
	}
	for _, f := range s.files {
		if err := readKeyValueFile(f, merged); err != nil {
			if os.IsNotExist(err) {
				s.log.Printf("ignoring non-existent file: %s", f)
				continue
			}
			return err
		}
	}

	s.mu.Lock()
	s.values = merged
	s.stamp = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Static) reloader() {
	defer func() {
		if err := recover(); err != nil {
			s.log.Printf("panic during reload: %v\n%s", err, debug.Stack())
		}
	}()

	t := time.NewTicker(staticReloadInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			s.maybeReload()
		case <-s.forceReload:
			s.maybeReload()
		case <-s.stopReloader:
			s.stopReloader <- struct{}{}
			return
		}
	}
}

func (s *Static) maybeReload() {
	latest, anyExist := latestMTime(s.files)
	s.mu.RLock()
	stamp := s.stamp
	s.mu.RUnlock()

	if !anyExist || !latest.After(stamp) {
		return
	}
	s.log.Debugf("reloading")
	if err := s.reload(); err != nil {
		s.log.Println(err)
	}
}

func (s *Static) Close() error {
	if len(s.files) > 0 {
		s.stopReloader <- struct{}{}
		<-s.stopReloader
	}
	return nil
}

func (s *Static) Lookup(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[strings.ToLower(key)]
	return v, ok, nil
}

func (s *Static) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Static) SetKey(k, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[strings.ToLower(k)] = v
	return nil
}

func (s *Static) RemoveKey(k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, strings.ToLower(k))
	return nil
}

func readKeyValueFile(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scnr := bufio.NewScanner(f)
	line := 0
	for scnr.Scan() {
		line++
		text := strings.TrimSpace(scnr.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		parts := strings.SplitN(text, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("%s:%d: missing colon separator", path, line)
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		if key == "" {
			return fmt.Errorf("%s:%d: empty key before colon", path, line)
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return scnr.Err()
}

func init() {
	module.Register(StaticModName, NewStatic)
}
