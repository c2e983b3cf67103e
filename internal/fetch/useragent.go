package fetch

import (
	"math/rand"
	"time"
)

// AgentPool hands out User-Agent strings for outgoing requests.
type AgentPool struct {
	agents []string
}

// NewAgentPool builds a pool from the configured agents, falling back to a
// small set of current desktop browser strings when none are configured.
func NewAgentPool(agents []string) *AgentPool {
	if len(agents) == 0 {
		agents = []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		}
	}
	return &AgentPool{agents: agents}
}

// Pick returns a random user agent string.
func (p *AgentPool) Pick() string {
	if len(p.agents) == 0 {
		return ""
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return p.agents[r.Intn(len(p.agents))]
}
