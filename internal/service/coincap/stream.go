package coincap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/pkg/logger"
	"SmartTrader/pkg/util"
)

// Stream implements domain PriceStream over wss://ws.coincap.io/prices.
// Frames look like {"bitcoin":"67012.34"}.
type Stream struct {
	url            string
	symbol         string
	asset          string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

var _ domrepo.PriceStream = (*Stream)(nil)

func NewStream(streamURL, symbol string, reconnectDelay time.Duration, log *logger.Logger) *Stream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Stream{
		url:            streamURL,
		symbol:         symbol,
		asset:          models.AssetID(symbol),
		reconnectDelay: reconnectDelay,
		pingInterval:   30 * time.Second,
		log:            log,
	}
}

func (s *Stream) Provider() string { return Name }

func (s *Stream) Connect(ctx context.Context) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("coincap stream url: %w", err)
	}
	q := u.Query()
	q.Set("assets", s.asset)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("coincap connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Info("coincap stream connected", logger.String("asset", s.asset))
	return nil
}

// Subscribe is a no-op: the asset list travels in the connect URL.
func (s *Stream) Subscribe(context.Context) error {
	if !s.IsConnected() {
		return errors.New("coincap stream not connected")
	}
	return nil
}

// Read emits ticks until ctx ends or the socket fails. Ticks are dropped
// when the consumer falls behind.
func (s *Stream) Read(ctx context.Context) (<-chan *models.PriceTick, <-chan error) {
	ticks := make(chan *models.PriceTick, 64)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		errs <- errors.New("coincap conn nil")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	go func() {
		t := time.NewTicker(s.pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-t.C:
				s.mu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("coincap read: %w", err)
				}
				return
			}
			tick, ok := ParseTick(b, s.asset, s.symbol, time.Now())
			if !ok {
				continue
			}
			select {
			case ticks <- tick:
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return ticks, errs
}

// ParseTick extracts the asset price from one frame.
func ParseTick(frame []byte, asset, symbol string, at time.Time) (*models.PriceTick, bool) {
	if !gjson.ValidBytes(frame) {
		return nil, false
	}
	price, ok := util.ParseFloat(gjson.GetBytes(frame, asset).String())
	if !ok {
		return nil, false
	}
	return &models.PriceTick{Symbol: symbol, Price: price, Timestamp: at.UnixMilli(), Provider: Name}, true
}

func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
