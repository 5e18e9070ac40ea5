// internal/gate/metrics.go
package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gatehouse_gate_decisions_total",
	Help: "Terminal gate outcomes by tenant.",
}, []string{"tenant", "outcome"})

func (k OutcomeKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectExternal:
		return "redirect_external"
	case RedirectError:
		return "redirect_error"
	case Reject:
		return "reject"
	}
	return "unknown"
}
