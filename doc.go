// Package ttlkv is a key-value store with per-entry expiry, payload
// compression and a size ceiling, running over one of two backends:
//
//   - async: a connection-oriented store reached through a handshake
//     (backend/async, e.g. Redis). Calls made before the handshake
//     completes are queued and replayed in order.
//   - sync: an always-ready in-process store (backend/local, BigCache by
//     default).
//
// The backend is chosen once, in New: a non-nil Options.Dialer selects async.
//
// Write path:
//
//	validate expiry -> encode (Codec) -> compress -> size check -> read prior
//	-> persist -> emit "change" if the value differs
//
// Entries are invisible to Get once their expiry passes and are physically
// removed by a periodic sweep. Observers subscribe to the "change" and
// "error" channels with On.
//
//	st, _ := ttlkv.New(ttlkv.Options[User]{Dialer: dialer})
//	off := st.On(ttlkv.ChannelChange, func(ev ttlkv.Event[User]) { ... })
//	defer off()
//	_ = st.Set(ctx, "u:1", u, time.Now().Add(time.Hour))
package ttlkv
