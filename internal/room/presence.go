package room

import (
	"github.com/ninechan-dev/ninechan/shared/domain"
)

// PresenceListener receives the full peer table after every presence change.
type PresenceListener func(peers map[domain.ClientId]domain.Identity)

// Join records a connected client. Joining twice refreshes the identity.
func (r *Room) Join(id domain.Identity) {
	r.peersMu.Lock()
	prev, existed := r.peers[id.ClientId]
	r.peers[id.ClientId] = id
	peers := r.copyPeers()
	r.peersMu.Unlock()

	if existed && prev == id {
		return
	}
	r.broadcastPresence(peers)
}

// Leave forgets a client. Unknown ids are ignored.
func (r *Room) Leave(clientId domain.ClientId) {
	r.peersMu.Lock()
	_, existed := r.peers[clientId]
	delete(r.peers, clientId)
	peers := r.copyPeers()
	r.peersMu.Unlock()

	if existed {
		r.broadcastPresence(peers)
	}
}

// Replace swaps the identity of a joined client, e.g. after an identity
// upgrade. Clients without a live socket are not peers and are ignored;
// they appear once they Join.
func (r *Room) Replace(id domain.Identity) bool {
	r.peersMu.Lock()
	prev, existed := r.peers[id.ClientId]
	if !existed {
		r.peersMu.Unlock()
		return false
	}
	r.peers[id.ClientId] = id
	peers := r.copyPeers()
	r.peersMu.Unlock()

	if prev != id {
		r.broadcastPresence(peers)
	}
	return true
}

// Peer looks up the identity for a local client id.
func (r *Room) Peer(clientId domain.ClientId) (domain.Identity, bool) {
	r.peersMu.RLock()
	defer r.peersMu.RUnlock()
	id, ok := r.peers[clientId]
	return id, ok
}

// Peers returns a copy of the peer table.
func (r *Room) Peers() map[domain.ClientId]domain.Identity {
	r.peersMu.RLock()
	defer r.peersMu.RUnlock()
	return r.copyPeers()
}

// SubscribePresence registers fn for presence changes.
func (r *Room) SubscribePresence(fn PresenceListener) (unsubscribe func()) {
	r.subsMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.presSubs[id] = fn
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.presSubs, id)
		r.subsMu.Unlock()
	}
}

func (r *Room) copyPeers() map[domain.ClientId]domain.Identity {
	out := make(map[domain.ClientId]domain.Identity, len(r.peers))
	for k, v := range r.peers {
		out[k] = v
	}
	return out
}

func (r *Room) broadcastPresence(peers map[domain.ClientId]domain.Identity) {
	roomPeers.Set(float64(len(peers)))

	r.subsMu.RLock()
	subs := make([]PresenceListener, 0, len(r.presSubs))
	for _, fn := range r.presSubs {
		subs = append(subs, fn)
	}
	r.subsMu.RUnlock()

	for _, fn := range subs {
		fn(peers)
	}
}
