package errs

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/singleflight"
)

// panicSelector is the 4-byte selector of the Solidity builtin
// Panic(uint256) error.
var panicSelector = crypto.Keccak256([]byte("Panic(uint256)"))[:4]

// panicReasons maps well-known Solidity panic codes to human-readable
// explanations.
var panicReasons = map[uint64]string{
	0x01: "assertion failed",
	0x11: "arithmetic overflow or underflow",
	0x12: "division or modulo by zero",
	0x21: "invalid enum value",
	0x22: "invalid storage byte array access",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "invalid internal function call",
}

// SelectorRegistry is the external selector-lookup collaborator (§6): given
// a 4-byte selector, return candidate function/error signature strings. The
// core only consumes this interface; the HTTP implementation lives outside
// the core.
type SelectorRegistry interface {
	Lookup(ctx context.Context, selector [4]byte) ([]string, error)
}

// SelectorCache is the process-wide signature cache seeded at startup with
// known custom-error signatures and lazily populated from the registry on
// miss. Concurrent lookups for the same selector coalesce into a single
// registry request via singleflight. Entries never expire.
type SelectorCache struct {
	registry SelectorRegistry
	group    singleflight.Group
	entries  sync.Map // [4]byte -> []string
}

// NewSelectorCache creates a cache seeded with seed (a selector -> candidate
// signature-list table, typically the static Orderbook/Arb/RouteProcessor/
// Balancer ABI error tables returned by SeedTable in abiconstants.go) and backed by
// registry for cache misses.
func NewSelectorCache(registry SelectorRegistry, seed map[[4]byte][]string) *SelectorCache {
	c := &SelectorCache{registry: registry}
	for sel, sigs := range seed {
		c.entries.Store(sel, sigs)
	}
	return c
}

// Lookup returns the candidate signatures for selector, consulting the cache
// first and falling back to a single-flight registry request on miss.
func (c *SelectorCache) Lookup(ctx context.Context, selector [4]byte) ([]string, error) {
	if v, ok := c.entries.Load(selector); ok {
		return v.([]string), nil
	}

	key := hex.EncodeToString(selector[:])
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.entries.Load(selector); ok {
			return v.([]string), nil
		}
		sigs, err := c.registry.Lookup(ctx, selector)
		if err != nil {
			return nil, Wrap(KindFetch, err, "selector registry lookup failed")
		}
		if len(sigs) == 0 {
			return nil, New(KindDecode, "selector registry returned no candidate signatures")
		}
		c.entries.Store(selector, sigs)
		return sigs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// DecodeRevert implements the §4.2 revert-decoding protocol: validate the
// hex payload, special-case the fixed Panic(uint256) selector, then try
// every candidate custom-error signature from the selector cache in order,
// returning the first that decodes successfully.
func DecodeRevert(ctx context.Context, cache *SelectorCache, data string) (string, error) {
	clean := strings.TrimPrefix(data, "0x")
	if len(clean) < 8 {
		return "", New(KindDecode, "revert data too short to contain a selector")
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return "", Wrap(KindDecode, err, "revert data is not valid hex")
	}

	selectorBytes := raw[:4]
	if string(selectorBytes) == string(panicSelector) {
		return decodePanic(raw[4:])
	}

	var selector [4]byte
	copy(selector[:], selectorBytes)

	sigs, err := cache.Lookup(ctx, selector)
	if err != nil {
		return "", err
	}

	for _, sig := range sigs {
		reason, ok := tryDecodeCustomError(sig, raw[4:])
		if ok {
			return reason, nil
		}
	}
	return "", New(KindDecode, "no candidate signature decoded the revert data")
}

func decodePanic(payload []byte) (string, error) {
	if len(payload) < 32 {
		return "", New(KindDecode, "malformed Panic(uint256) payload")
	}
	code := new(big.Int).SetBytes(payload[:32]).Uint64()
	if reason, ok := panicReasons[code]; ok {
		return reason, nil
	}
	return fmt.Sprintf("unknown reason with code: 0x%02x", code), nil
}

// tryDecodeCustomError attempts to decode payload as the arguments of the
// custom error named by sig (e.g. "InsufficientOutput(uint256,uint256)").
// It never panics on malformed input; a decode failure is reported via ok.
func tryDecodeCustomError(sig string, payload []byte) (reason string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	name, argTypes, err := splitSignature(sig)
	if err != nil {
		return "", false
	}

	args := make(abi.Arguments, 0, len(argTypes))
	for _, t := range argTypes {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return "", false
		}
		args = append(args, abi.Argument{Type: typ})
	}

	values, err := args.Unpack(payload)
	if err != nil {
		return "", false
	}

	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", ")), true
}

// splitSignature parses "Name(type1,type2)" into its name and argument
// types.
func splitSignature(sig string) (name string, argTypes []string, err error) {
	open := strings.IndexByte(sig, '(')
	if open < 0 || !strings.HasSuffix(sig, ")") {
		return "", nil, New(KindDecode, "malformed signature")
	}
	name = sig[:open]
	inner := sig[open+1 : len(sig)-1]
	if inner == "" {
		return name, nil, nil
	}
	return name, strings.Split(inner, ","), nil
}
