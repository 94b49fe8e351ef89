package table

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nextmx/resolved/framework/config"
	"github.com/nextmx/resolved/framework/hooks"
	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/framework/module"
)

const ListModName = "table.list"

// readLines returns the non-blank, non-comment lines of path. A missing
// file is treated as empty rather than an error, since a list's entries
// file is often created lazily by an adjacent admin tool.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scnr := bufio.NewScanner(f)
	for scnr.Scan() {
		text := strings.TrimSpace(scnr.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, text)
	}
	return lines, scnr.Err()
}

// latestMTime returns the most recent modification time across files
// that currently exist, and whether any of them did.
func latestMTime(files []string) (time.Time, bool) {
	var latest time.Time
	anyExist := false
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		anyExist = true
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, anyExist
}

// List is the C3 membership capability: given a name, decide whether it
// belongs to a named set. With parent_style on (the default for a
// virtual_mailbox_domains/relay_domains-style list) an entry also matches
// any of its subdomains, so "example.com" covers "a.example.com"; with it
// off the list behaves as a plain string set with exact and leading-"."
// wildcard entries, same as virtual_alias_domains historically allowed.
//
// There is no teacher file for this: maddy's own config loader treats
// domain/string lists as a built-in primitive rather than a pluggable
// module, so this reuses Static's reload-on-mtime plumbing instead of
// copying a list implementation that does not exist in the pack.
type List struct {
	instName    string
	parentStyle bool

	files   []string
	inline  []string

	mu      sync.RWMutex
	entries map[string]struct{}
	stamp   time.Time

	stopReloader chan struct{}
	forceReload  chan struct{}
	log          log.Logger
}

func NewList(_, instName string, _, inlineArgs []string) (module.Module, error) {
	return &List{
		instName:     instName,
		inline:       inlineArgs,
		entries:      map[string]struct{}{},
		stopReloader: make(chan struct{}),
		forceReload:  make(chan struct{}),
		log:          log.Logger{Name: ListModName},
	}, nil
}

func (l *List) Name() string         { return ListModName }
func (l *List) InstanceName() string { return l.instName }

func (l *List) Init(cfg *config.Map) error {
	cfg.Bool("debug", true, l.log.Debug, &l.log.Debug)
	cfg.Bool("parent_style", false, true, &l.parentStyle)
	cfg.StringList("files", false, false, nil, &l.files)
	cfg.StringList("entries", false, false, nil, &l.inline)
	if _, err := cfg.Process(); err != nil {
		return err
	}

	if err := l.reload(); err != nil {
		return err
	}

	if len(l.files) > 0 {
		go l.reloader()
		hooks.AddHook(hooks.EventReload, func() {
			l.forceReload <- struct{}{}
		})
	}

	return nil
}

func (l *List) reload() error {
	merged := make(map[string]struct{}, len(l.inline))
	for _, e := range l.inline {
		merged[strings.ToLower(e)] = struct{}{}
	}
	for _, f := range l.files {
		lines, err := readLines(f)
		if err != nil {
			return err
		}
		for _, line := range lines {
			merged[strings.ToLower(line)] = struct{}{}
		}
	}

	l.mu.Lock()
	l.entries = merged
	l.stamp = time.Now()
	l.mu.Unlock()
	return nil
}

func (l *List) reloader() {
	t := time.NewTicker(staticReloadInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			l.maybeReload()
		case <-l.forceReload:
			l.maybeReload()
		case <-l.stopReloader:
			l.stopReloader <- struct{}{}
			return
		}
	}
}

func (l *List) maybeReload() {
	latest, anyExist := latestMTime(l.files)
	l.mu.RLock()
	stamp := l.stamp
	l.mu.RUnlock()
	if !anyExist || !latest.After(stamp) {
		return
	}
	l.log.Debugf("reloading")
	if err := l.reload(); err != nil {
		l.log.Println(err)
	}
}

func (l *List) Close() error {
	if len(l.files) > 0 {
		l.stopReloader <- struct{}{}
		<-l.stopReloader
	}
	return nil
}

// Match reports whether name belongs to the list. In parent_style mode,
// "sub.a.example.com" matches an entry "example.com" because each
// successive parent domain is checked in turn, mirroring Postfix's
// domain-list semantics for virtual_mailbox_domains et al.
func (l *List) Match(name string) (bool, error) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))

	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.entries[name]; ok {
		return true, nil
	}
	if !l.parentStyle {
		// A leading-"." entry matches every subdomain of what follows it.
		for n := name; ; {
			i := strings.IndexByte(n, '.')
			if i == -1 {
				return false, nil
			}
			n = n[i+1:]
			if _, ok := l.entries["."+n]; ok {
				return true, nil
			}
		}
	}

	for {
		i := strings.IndexByte(name, '.')
		if i == -1 {
			return false, nil
		}
		name = name[i+1:]
		if name == "" {
			return false, nil
		}
		if _, ok := l.entries[name]; ok {
			return true, nil
		}
	}
}

func init() {
	module.Register(ListModName, NewList)
}
