package queue

import (
	"context"
	"time"

	"github.com/unkn0wn-root/ttlkv/backend"
)

type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
	OpKeys   Op = "keys"
	OpSweep  Op = "sweep"
)

// Command is an immutable request for one store operation.
// Build it with the constructors below; the zero value is not a valid command.
type Command struct {
	op    Op
	key   string
	entry backend.Entry

	ctx  context.Context
	done chan Result
}

func Get(key string) Command    { return Command{op: OpGet, key: key} }
func Remove(key string) Command { return Command{op: OpRemove, key: key} }
func Clear() Command            { return Command{op: OpClear} }
func Keys() Command             { return Command{op: OpKeys} }
func Sweep() Command            { return Command{op: OpSweep} }

// Set carries the [expiresAt, value] payload.
func Set(key string, value []byte, expiresAt time.Time) Command {
	return Command{
		op:    OpSet,
		key:   key,
		entry: backend.Entry{Key: key, ExpiresAt: expiresAt, Value: value},
	}
}

func (c Command) Op() Op      { return c.op }
func (c Command) Key() string { return c.key }

// Payload is the [expiresAt, value] pair of a set command.
func (c Command) Payload() backend.Entry { return c.entry }
