package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/accessgrid/fleet-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second

	// opTimeout bounds publish, subscribe and unsubscribe acknowledgements.
	opTimeout = 5 * time.Second

	// disconnectQuiesceMs is how long Close lets in-flight work drain.
	disconnectQuiesceMs = 1000

	keepAlive = 60 * time.Second

	maxQoS = 2
)

// buildOptions translates the mqtt section of config.yaml into paho options.
func buildOptions(cfg config.MQTTConfig) *paho.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// Last will: the broker flips our retained presence to offline when the
	// session dies without a clean Close.
	opts.SetBinaryWill(Topics{}.SystemStatus(), presenceCrashed(cfg.Broker.ClientID), 1, true)

	return opts
}

// presence is the retained payload on the system status topic. Consumers use
// it to tell a running fleet-core from a crashed or stopped one.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func presencePayload(status, clientID, reason string) []byte {
	// A fixed struct with string fields cannot fail to marshal.
	b, _ := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

func presenceOnline(clientID string) []byte {
	return presencePayload("online", clientID, "")
}

func presenceOffline(clientID string) []byte {
	return presencePayload("offline", clientID, "graceful_shutdown")
}

func presenceCrashed(clientID string) []byte {
	return presencePayload("offline", clientID, "unexpected_disconnect")
}
