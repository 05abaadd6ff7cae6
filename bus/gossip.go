package bus

import (
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// Payloads larger than this are sent over memberlist's reliable channel
// instead of being piggybacked on gossip packets.
const maxGossipPayload = 1024

type GossipConfig struct {
	ID               string
	BindAddress      string
	BindPort         int
	AdvertiseAddress string
	AdvertisePort    int
}

type simpleBroadcast []byte

func (b simpleBroadcast) Message() []byte                       { return []byte(b) }
func (b simpleBroadcast) Invalidates(memberlist.Broadcast) bool { return false }
func (b simpleBroadcast) Finished()                             {}

type Gossip struct {
	id         string
	mlist      *memberlist.Memberlist
	logger     *zap.Logger
	subs       *subscribers
	bcastQueue *memberlist.TransmitLimitedQueue
	mtx        sync.Mutex
	onLeave    []func(peer string)
}

func NewGossip(config GossipConfig, logger *zap.Logger) (*Gossip, error) {
	self := &Gossip{
		id:     config.ID,
		logger: logger,
		subs:   newSubscribers(),
	}
	self.bcastQueue = &memberlist.TransmitLimitedQueue{
		NumNodes:       self.numMembers,
		RetransmitMult: 3,
	}
	mconfig := memberlist.DefaultLANConfig()
	mconfig.Name = config.ID
	mconfig.BindAddr = config.BindAddress
	mconfig.BindPort = config.BindPort
	mconfig.AdvertiseAddr = config.AdvertiseAddress
	mconfig.AdvertisePort = config.AdvertisePort
	mconfig.Delegate = self
	mconfig.Events = self
	if os.Getenv("ENABLE_MEMBERLIST_LOG") != "true" {
		mconfig.LogOutput = ioutil.Discard
	}
	list, err := memberlist.Create(mconfig)
	if err != nil {
		return nil, err
	}
	self.mlist = list
	return self, nil
}

func (g *Gossip) numMembers() int {
	if g.mlist == nil {
		return 1
	}
	return g.mlist.NumMembers()
}

// Join contacts the given peers. It succeeds if at least one of them answered.
func (g *Gossip) Join(peers []string) error {
	if len(peers) == 0 {
		return nil
	}
	count, err := g.mlist.Join(peers)
	if err != nil {
		if count == 0 {
			g.logger.Warn("failed to join gossip cluster", zap.Error(err))
			return err
		}
		g.logger.Warn("failed to join some member of cluster", zap.Error(err))
	}
	return nil
}

func (g *Gossip) Publish(payload []byte) error {
	if len(payload) <= maxGossipPayload {
		g.bcastQueue.QueueBroadcast(simpleBroadcast(payload))
		return nil
	}
	for _, member := range g.mlist.Members() {
		if member.Name == g.id {
			continue
		}
		go func(node *memberlist.Node) {
			if err := g.mlist.SendReliable(node, payload); err != nil {
				g.logger.Warn("failed to send event to peer", zap.String("peer_id", node.Name), zap.Error(err))
			}
		}(member)
	}
	return nil
}

func (g *Gossip) Subscribe(handler Handler) (func(), error) {
	return g.subs.add(handler), nil
}

func (g *Gossip) Health() string {
	if g.mlist.NumMembers() == 1 {
		return "warning"
	}
	return "ok"
}

func (g *Gossip) Close() error {
	g.logger.Info("leaving gossip cluster")
	err := g.mlist.Leave(5 * time.Second)
	if err != nil {
		return err
	}
	return g.mlist.Shutdown()
}

func (g *Gossip) NotifyMsg(b []byte) {
	g.subs.emit(b)
}
func (g *Gossip) GetBroadcasts(overhead, limit int) [][]byte {
	return g.bcastQueue.GetBroadcasts(overhead, limit)
}
func (g *Gossip) NodeMeta(limit int) []byte {
	return nil
}
func (g *Gossip) LocalState(join bool) []byte {
	return nil
}
func (g *Gossip) MergeRemoteState(buf []byte, join bool) {}

func (g *Gossip) OnPeerLeft(handler func(peer string)) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.onLeave = append(g.onLeave, handler)
}

func (g *Gossip) NotifyJoin(node *memberlist.Node) {
	g.logger.Info("peer joined", zap.String("peer_id", node.Name), zap.String("peer_address", node.Addr.String()))
}
func (g *Gossip) NotifyLeave(node *memberlist.Node) {
	if node.Name == g.id {
		return
	}
	g.logger.Info("peer left", zap.String("peer_id", node.Name))
	g.mtx.Lock()
	handlers := make([]func(string), len(g.onLeave))
	copy(handlers, g.onLeave)
	g.mtx.Unlock()
	for _, handler := range handlers {
		handler(node.Name)
	}
}
func (g *Gossip) NotifyUpdate(node *memberlist.Node) {}
