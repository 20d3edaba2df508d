// Package api serves the metering HTTP API: event ingestion authenticated by
// tenant API keys, the dashboard API authenticated by identity-provider
// sessions, internal operations guarded by an admin token, and the payment
// provider webhook.
package api
