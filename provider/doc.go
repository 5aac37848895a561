// Package provider is the HTTP boundary to upstream travel and payment
// APIs (flight search, hotel availability, charges).
//
// The client wires the full resilience stack around every call: a
// sony/gobreaker circuit breaker, per-endpoint token-bucket rate
// limiting, and retry with exponential backoff. Upstream failures are
// classified into faults.Error values here, at the boundary where they
// originate, so nothing downstream ever inspects error message text.
//
// # Usage
//
//	cfg := provider.DefaultConfig()
//	cfg.BaseURL = "https://api.example-gds.com"
//	cfg.APIKey = provider.Secret(os.Getenv("PROVIDER_API_KEY"))
//
//	client, err := provider.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	var offers OffersResponse
//	err = client.Get(ctx, "/v2/shopping/flight-offers", query, &offers)
package provider
