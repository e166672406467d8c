package private

import (
	"github.com/kadchain/blockchain/business/sys/validate"
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
)

// newPeer is the payload of a node announcing itself.
type newPeer struct {
	Host string `json:"host" validate:"required,hostname_port"`
	ID   string `json:"id"`
}

// Validate checks the data in the model is considered clean.
func (np newPeer) Validate() error {
	return validate.Check(np)
}

func (np newPeer) toPeer() (peer.Peer, error) {
	id, err := peer.ParseNodeID(np.ID)
	if err != nil {
		return peer.Peer{}, err
	}

	return peer.NewWithID(np.Host, id), nil
}
