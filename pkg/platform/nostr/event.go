package nostr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/bits"
	"sync"
)

// event is a NIP-01 kind-1 text note, serialized with the field order and
// names the protocol requires.
type event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

func newEvent(pubkeyHex string, createdAt int64, content string, tags [][]string) event {
	if tags == nil {
		tags = [][]string{}
	}
	return event{
		PubKey:    pubkeyHex,
		CreatedAt: createdAt,
		Kind:      kindTextNote,
		Tags:      tags,
		Content:   content,
	}
}

// serializeForID produces the canonical NIP-01 array
// [0, pubkey, created_at, kind, tags, content] whose sha256 is the event ID.
func (e event) serializeForID() ([]byte, error) {
	arr := []any{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}
	return json.Marshal(arr)
}

func (e event) computeID() (string, error) {
	raw, err := e.serializeForID()
	if err != nil {
		return "", fmt.Errorf("serializing event: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// leadingZeroBits counts the number of leading zero bits in id (NIP-13
// difficulty).
func leadingZeroBits(id string) int {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return 0
	}
	count := 0
	for _, b := range raw {
		if b == 0 {
			count += 8
			continue
		}
		count += bits.LeadingZeros8(b)
		break
	}
	return count
}

// mineEvent searches for a nonce tag value producing an event ID with at
// least difficulty leading zero bits, spreading the search across workers
// goroutines (spec §5's bounded worker pool for CPU-bound steps).
func mineEvent(ctx context.Context, pubkeyHex string, createdAt int64, content string, difficulty, workers int) (event, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		ev  event
		err error
	}
	results := make(chan result, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			nonce := start
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				tags := [][]string{{"nonce", fmt.Sprintf("%d", nonce), fmt.Sprintf("%d", difficulty)}}
				ev := newEvent(pubkeyHex, createdAt, content, tags)
				id, err := ev.computeID()
				if err != nil {
					select {
					case results <- result{err: err}:
					case <-ctx.Done():
					}
					return
				}
				if leadingZeroBits(id) >= difficulty {
					ev.ID = id
					select {
					case results <- result{ev: ev}:
					case <-ctx.Done():
					}
					return
				}
				nonce += workers
			}
		}(w)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		cancel()
		if r.err != nil {
			return event{}, r.err
		}
		return r.ev, nil
	}
	return event{}, fmt.Errorf("mining cancelled before a solution was found")
}
