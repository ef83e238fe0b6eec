// Package wire encodes changes and replication frames as CBOR. The change log
// and the relay share it so a stored change and a broadcast one are the same
// bytes.
package wire

import (
	"fmt"
	"reflect"

	"blockdoc/internal/domain"

	"github.com/fxamacker/cbor/v2"
)

// Frame types exchanged over the relay.
const (
	FrameHello    = "hello"    // server → client: current snapshot
	FrameChange   = "change"   // both ways: one committed change
	FrameAck      = "ack"      // server → client: change applied at Version
	FrameError    = "error"    // server → client
	FrameSnapshot = "snapshot" // client → server: request a fresh hello
)

// Frame is one relay message.
type Frame struct {
	Type     string           `json:"type"`
	DocID    string           `json:"docId,omitempty"`
	ClientID string           `json:"clientId,omitempty"`
	Version  uint64           `json:"version,omitempty"`
	Change   *domain.Change   `json:"change,omitempty"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
	Error    string           `json:"error,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Time: cbor.TimeRFC3339Nano,
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: cbor encode mode: %v", err))
	}
	// Payload maps (block data, text marks) must come back as map[string]any.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: cbor decode mode: %v", err))
	}
}

func EncodeChange(c *domain.Change) ([]byte, error) {
	b, err := encMode.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode change %s: %w", c.ID, err)
	}
	return b, nil
}

func DecodeChange(b []byte) (*domain.Change, error) {
	var c domain.Change
	if err := decMode.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode change: %w", err)
	}
	return &c, nil
}

func EncodeFrame(f *Frame) ([]byte, error) {
	b, err := encMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return b, nil
}

func DecodeFrame(b []byte) (*Frame, error) {
	var f Frame
	if err := decMode.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type: %w", domain.ErrInvalidOperation)
	}
	return &f, nil
}
