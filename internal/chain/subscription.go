package chain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"orchestrator/internal/stream"
	"orchestrator/pkg/exception"
)

const subscribeRequestID = 1

// Filter restricts delivered accounts server side. Set exactly one field.
type Filter = rpc.RPCFilter

// SubscribeConfig describes a program account subscription.
type SubscribeConfig struct {
	Endpoint          string
	ProgramID         string
	Filters           []Filter
	Encoding          solana.EncodingType
	Commitment        rpc.CommitmentType
	ConnectionTimeout time.Duration
}

type programResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value rpc.KeyedAccount `json:"value"`
}

type rpcMessage struct {
	ID     *int64              `json:"id"`
	Result json.RawMessage     `json:"result"`
	Error  *jsonrpc.RPCError   `json:"error"`
	Method string              `json:"method"`
	Params *notificationParams `json:"params"`
}

type notificationParams struct {
	Subscription uint64        `json:"subscription"`
	Result       programResult `json:"result"`
}

// Subscription streams account changes of one program over a websocket.
// Undecodable notifications are logged and skipped.
type Subscription struct {
	cfg     SubscribeConfig
	dialer  *websocket.Dialer
	tracker *stream.Tracker
}

// NewSubscription creates a subscription, base64 encoding and confirmed
// commitment are used unless configured.
func NewSubscription(cfg SubscribeConfig) *Subscription {
	if cfg.Encoding == "" {
		cfg.Encoding = solana.EncodingBase64
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}
	return &Subscription{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		tracker: stream.NewTracker("program:" + cfg.ProgramID),
	}
}

// State returns the connection state.
func (s *Subscription) State() stream.State {
	return s.tracker.State()
}

// Run connects, subscribes and hands every update to handle until the
// transport fails or ctx is done. It does not reconnect.
func (s *Subscription) Run(ctx context.Context, handle func(AccountUpdate)) error {
	program, err := solana.PublicKeyFromBase58(s.cfg.ProgramID)
	if err != nil {
		return errors.Wrapf(exception.ErrInvalidArgument, "program id %q, err: %s", s.cfg.ProgramID, err.Error())
	}

	if !s.tracker.Transition(stream.StateConnecting) {
		return exception.ErrStreamAlreadyRunning
	}
	defer s.tracker.Transition(stream.StateDisconnected)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectionTimeout)
	conn, _, err := s.dialer.DialContext(dialCtx, s.cfg.Endpoint, nil)
	cancel()
	if err != nil {
		return errors.Wrap(exception.ErrStreamTransport, "dial, err: "+err.Error())
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if err := s.subscribe(conn, program); err != nil {
		return err
	}

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(exception.ErrStreamTransport, "read, err: "+err.Error())
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var m rpcMessage
		if err := sonic.Unmarshal(msg, &m); err != nil {
			logs.Errorf("unmarshal program message, err: %+v", err)
			continue
		}

		if m.ID != nil && *m.ID == subscribeRequestID {
			if m.Error != nil {
				return errors.Wrapf(exception.ErrSubscriptionRejected, "code: %d, message: %s", m.Error.Code, m.Error.Message)
			}
			s.tracker.Transition(stream.StateStreaming)
			logs.Infof("program %s subscribed, subscription: %s", s.cfg.ProgramID, string(m.Result))
			continue
		}

		if m.Method != "programNotification" || m.Params == nil {
			continue
		}

		update, err := toUpdate(m.Params.Result)
		if err != nil {
			logs.Errorf("decode program notification, err: %+v", err)
			continue
		}
		handle(update)
	}
}

func (s *Subscription) subscribe(conn *websocket.Conn, program solana.PublicKey) error {
	req := jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      subscribeRequestID,
		Method:  "programSubscribe",
		Params: []any{
			program.String(),
			rpc.GetProgramAccountsOpts{
				Encoding:   s.cfg.Encoding,
				Commitment: s.cfg.Commitment,
				Filters:    s.cfg.Filters,
			},
		},
	}

	payload, err := sonic.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal subscribe request")
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(exception.ErrStreamTransport, "write subscribe, err: "+err.Error())
	}
	return nil
}

func toUpdate(res programResult) (AccountUpdate, error) {
	account := res.Value.Account
	if account == nil {
		return AccountUpdate{}, errors.Wrap(exception.ErrAccountDecode, "missing account").With("pubkey", res.Value.Pubkey.String())
	}

	update := AccountUpdate{
		Pubkey:     res.Value.Pubkey.String(),
		Owner:      account.Owner.String(),
		Lamports:   account.Lamports,
		Executable: account.Executable,
		Slot:       res.Context.Slot,
	}
	if account.RentEpoch != nil && account.RentEpoch.IsUint64() {
		update.RentEpoch = account.RentEpoch.Uint64()
	}
	if account.Data != nil {
		update.Data = account.Data.GetBinary()
	}
	return update, nil
}
