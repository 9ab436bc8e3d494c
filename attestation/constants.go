package attestation

import "time"

const (
	// API hosts
	GatewayTestnetURL = "https://gateway-api-testnet.circle.com"
	GatewayMainnetURL = "https://gateway-api.circle.com"

	transferPath = "/v1/transfer"
	infoPath     = "/v1/info"

	defaultTimeout           = 30 * time.Second
	defaultRequestsPerSecond = 10
	maxInfoRetries           = 3
)
