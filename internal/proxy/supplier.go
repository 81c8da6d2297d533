package proxy

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"resty.dev/v3"
)

// maxParallelChecks bounds concurrent proxy validation requests.
const maxParallelChecks = 50

// Supplier manages a pool of proxies with round-robin selection
type Supplier interface {
	Get() string
	All() []string
}

type supplier struct {
	proxies []string
	current int
	mutex   sync.Mutex
}

// NewStaticSupplier uses the given proxies as-is, without testing them.
func NewStaticSupplier(proxies []string) Supplier {
	valid := make([]string, 0, len(proxies))
	for _, p := range proxies {
		if p != "" {
			valid = append(valid, p)
		}
	}
	return &supplier{proxies: valid}
}

// NewValidatedSupplier tests every proxy against testURL in parallel and keeps the working ones.
func NewValidatedSupplier(ctx context.Context, proxies []string, testURL string) (Supplier, error) {
	if len(proxies) == 0 {
		return &supplier{proxies: []string{}}, nil
	}

	log.Infof("🔄 Testing %d proxies in parallel...", len(proxies))

	sem := semaphore.NewWeighted(maxParallelChecks)
	results := make([]bool, len(proxies))

	var wg sync.WaitGroup
	for i, proxyURL := range proxies {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)

		go func(index int, proxy string) {
			defer wg.Done()
			defer sem.Release(1)

			log.Debugf("🔄 Testing proxy %d/%d: %s", index+1, len(proxies), proxy)

			if isProxyValid(ctx, proxy, testURL) {
				results[index] = true
				log.Infof("✅ Proxy %s is working", proxy)
			} else {
				log.Infof("❌ Proxy %s is not working, skipping", proxy)
			}
		}(i, proxyURL)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// keep configured order so rotation is deterministic
	validProxies := make([]string, 0, len(proxies))
	for i, ok := range results {
		if ok {
			validProxies = append(validProxies, proxies[i])
		}
	}

	log.Infof("✅ Proxy supplier initialized with %d working proxies out of %d tested", len(validProxies), len(proxies))

	return &supplier{proxies: validProxies}, nil
}

// Get returns the next proxy URL in round-robin fashion
func (p *supplier) Get() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.proxies) == 0 {
		return "" // direct connection
	}

	proxy := p.proxies[p.current]
	p.current = (p.current + 1) % len(p.proxies)

	return proxy
}

// All returns a copy of the pool
func (p *supplier) All() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	out := make([]string, len(p.proxies))
	copy(out, p.proxies)
	return out
}

// isProxyValid tests if a proxy can successfully make a request to the test URL
func isProxyValid(ctx context.Context, proxyURL, testURL string) bool {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0).
		SetProxy(proxyURL).
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})
	defer client.Close()

	resp, err := client.R().
		SetContext(ctx).
		Get(testURL)

	if err != nil {
		log.Infof("Proxy test failed for %s: %v", proxyURL, err)
		return false
	}

	if resp.IsError() {
		log.Infof("Proxy test failed for %s with status: %s", proxyURL, resp.Status())
		return false
	}

	return true
}
