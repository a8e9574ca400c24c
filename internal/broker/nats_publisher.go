package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"nepse-mock-trader/internal/service"
)

var ErrNotConnected = errors.New("nats client not connected")

// NATSPublisher 基于 NATS Core 的事件总线 (fire-and-forget)
type NATSPublisher struct {
	config *service.NATSConfig
	logger *zap.Logger

	mu        sync.Mutex
	nc        *nats.Conn
	connected atomic.Bool
}

func NewNATSPublisher(config *service.NATSConfig, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{
		config: config,
		logger: logger.With(zap.String("Component", "nats"), zap.String("ClientID", config.ClientID)),
	}
}

// Connect 建立连接, 断线后由客户端自动重连
func (np *NATSPublisher) Connect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc != nil && np.nc.IsConnected() {
		return nil
	}

	opts := []nats.Option{
		nats.Name(np.config.ClientID),
		nats.Timeout(np.config.ConnectTimeout),
		nats.ReconnectWait(np.config.ReconnectWait),
		nats.MaxReconnects(np.config.MaxReconnects),

		nats.ClosedHandler(func(nc *nats.Conn) {
			np.logger.Warn("NATS connection closed")
			np.connected.Store(false)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			np.logger.Warn("NATS disconnected, attempting reconnect", zap.Error(err))
			np.connected.Store(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			np.logger.Info("NATS reconnected", zap.String("URL", nc.ConnectedUrl()))
			np.connected.Store(true)
		}),
	}

	nc, err := nats.Connect(np.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}
	np.nc = nc
	np.connected.Store(true)

	np.logger.Info("Connected to NATS", zap.String("URL", nc.ConnectedUrl()))
	return nil
}

func (np *NATSPublisher) IsConnected() bool {
	return np.connected.Load()
}

func (np *NATSPublisher) PublishOrder(subject string, evt OrderEvent) error {
	if evt.Origin == "" {
		evt.Origin = np.config.ClientID
	}
	return np.publishJSON(subject, evt)
}

func (np *NATSPublisher) PublishCollateral(evt CollateralEvent) error {
	if evt.Origin == "" {
		evt.Origin = np.config.ClientID
	}
	return np.publishJSON(SubjectCollateralUpdated, evt)
}

func (np *NATSPublisher) publishJSON(subject string, v interface{}) error {
	if !np.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize event for %s: %w", subject, err)
	}

	fullSubject := np.subject(subject)
	if err := np.nc.Publish(fullSubject, data); err != nil {
		np.logger.Error("Failed to publish event", zap.String("Subject", fullSubject), zap.Error(err))
		return err
	}
	return nil
}

func (np *NATSPublisher) SubscribeCollateral(fn func(CollateralEvent)) (func(), error) {
	np.mu.Lock()
	nc := np.nc
	np.mu.Unlock()
	if nc == nil {
		return nil, ErrNotConnected
	}

	sub, err := nc.Subscribe(np.subject(SubjectCollateralUpdated), func(msg *nats.Msg) {
		np.handleCollateral(msg.Data, fn)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe collateral events: %w", err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			np.logger.Debug("Unsubscribe failed", zap.Error(err))
		}
	}, nil
}

// handleCollateral 解码事件并过滤掉自己发布的消息
func (np *NATSPublisher) handleCollateral(data []byte, fn func(CollateralEvent)) {
	var evt CollateralEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		np.logger.Warn("Dropping malformed collateral event", zap.Error(err))
		return
	}
	if evt.Origin == np.config.ClientID {
		return
	}
	fn(evt)
}

// Close 先 Drain 再关闭, 保证已发布的消息被发送
func (np *NATSPublisher) Close() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc == nil || np.nc.IsClosed() {
		return nil
	}

	err := np.nc.Drain()
	np.connected.Store(false)
	np.logger.Info("NATS connection closed")
	return err
}

// subject 加上配置的前缀
func (np *NATSPublisher) subject(subject string) string {
	if np.config.SubjectPrefix != "" {
		return np.config.SubjectPrefix + "." + subject
	}
	return subject
}
