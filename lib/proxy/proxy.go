// Package proxy holds the rotation strategies used to spread portal
// traffic across a pool of outbound proxies. The strategy is owned
// and injected by the caller, there is no package-level rotation
// state.
package proxy

import (
	"fmt"
	"math/rand"
	"net/url"
	"sync"
)

// Strategy picks the proxy for the next portal session. An empty
// result means "connect directly".
type Strategy interface {
	Next() string
}

type roundRobin struct {
	mu      sync.Mutex
	proxies []string
	index   int
}

func RoundRobin(proxies []string) Strategy {
	return &roundRobin{proxies: proxies}
}

func (r *roundRobin) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return ""
	}
	p := r.proxies[r.index]
	r.index = (r.index + 1) % len(r.proxies)
	return p
}

type randomPick struct {
	proxies []string
}

func Random(proxies []string) Strategy {
	return randomPick{proxies: proxies}
}

func (r randomPick) Next() string {
	if len(r.proxies) == 0 {
		return ""
	}
	return r.proxies[rand.Intn(len(r.proxies))]
}

type sticky struct {
	proxy string
}

// Sticky always returns the same proxy, keeping one outbound identity
// for the lifetime of the strategy.
func Sticky(proxies []string) Strategy {
	if len(proxies) == 0 {
		return sticky{}
	}
	return sticky{proxy: proxies[0]}
}

func (s sticky) Next() string {
	return s.proxy
}

// FromConfig builds a strategy by name. Unknown names are an error so
// a config typo doesn't silently disable rotation.
func FromConfig(strategy string, proxies []string) (Strategy, error) {
	for _, p := range proxies {
		if err := Validate(p); err != nil {
			return nil, err
		}
	}
	switch strategy {
	case "", "sticky":
		return Sticky(proxies), nil
	case "round_robin":
		return RoundRobin(proxies), nil
	case "random":
		return Random(proxies), nil
	}
	return nil, fmt.Errorf("unknown proxy strategy %q", strategy)
}

func Validate(proxyUrl string) error {
	parsed, err := url.Parse(proxyUrl)
	if err != nil {
		return err
	}
	switch parsed.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("proxy %q has no host", proxyUrl)
	}
	return nil
}
