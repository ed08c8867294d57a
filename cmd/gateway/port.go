package main

import (
	"fmt"
	"net"

	"go.uber.org/zap"
)

// defaultFallbackPorts are tried in order when no fallback list is
// configured and the preferred port is bound.
var defaultFallbackPorts = []int{3001, 3002, 3003, 3004}

// pickListener binds the preferred port, falling back through candidates
// when it is taken. The listener is returned bound so there is no window
// between the probe and the serve.
func pickListener(preferred int, candidates []int) (net.Listener, int, error) {
	if len(candidates) == 0 {
		candidates = defaultFallbackPorts
	}
	tried := append([]int{preferred}, candidates...)
	for i, port := range tried {
		if i > 0 && port == preferred {
			continue
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			if port != preferred {
				zap.L().Warn("preferred port in use, using fallback",
					zap.Int("preferred", preferred), zap.Int("port", port))
			}
			return ln, port, nil
		}
	}
	return nil, 0, fmt.Errorf("no available port among %v", tried)
}
