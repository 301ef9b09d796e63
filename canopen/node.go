package canopen

import (
	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda/od"
)

// Node is a remote canopen node
type Node struct {
	// Each node has an id, which is ArbitrationID & 0x7F
	ID int

	Network *Network
	// ObjectDic describes the node, usually loaded from its EDS.
	ObjectDic *od.ObjectDictionary

	SDOClient *SDOClient
}

func NewNode(id int, network *Network, objectDic *od.ObjectDictionary) *Node {
	node := &Node{
		ID:        id,
		Network:   network,
		ObjectDic: objectDic,
	}

	return node
}

// GetId returns Node ID
func (node *Node) GetId() int {
	return node.ID
}

// Object gets an object description from ObjectDic
func (node *Node) Object(index uint16) *od.Object {
	if node.ObjectDic == nil {
		return nil
	}
	return node.ObjectDic.Object(index)
}

// Send sends Frame with arbitration ID by connected network
func (node *Node) Send(arbID uint32, data []byte) error {
	if node.Network == nil {
		return errors.New("network not defined")
	}
	return node.Network.Send(arbID, data)
}

// AcquireFramesChanFromNetwork gets new Channel for given FilterFunc
func (node *Node) AcquireFramesChanFromNetwork(filterFunc networkFramesChanFilterFunc) *NetworkFramesChan {
	if node.Network == nil {
		return nil
	}
	return node.Network.AcquireFramesChan(filterFunc)
}

// ReleaseFramesChanFromNetwork free channel with given id from network
func (node *Node) ReleaseFramesChanFromNetwork(id string) {
	if node.Network != nil {
		node.Network.ReleaseFramesChan(id)
	}
}

// SetNetwork set node.Network to the desired network
func (node *Node) SetNetwork(network *Network) {
	node.Network = network
}

// SetObjectDic set node.ObjectDic to the desired ObjectDic
func (node *Node) SetObjectDic(objectDic *od.ObjectDictionary) {
	node.ObjectDic = objectDic
}

// Init creates the sdo client
func (node *Node) Init() {
	node.SDOClient = NewSDOClient(node)
}
