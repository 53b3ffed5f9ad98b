package confidential

import (
	"fmt"
)

// Recognized chains
const (
	ChainArbitrumSepolia int64 = 421614
	ChainBellecour       int64 = 134
)

// Network is the confidential-computing configuration of one chain
type Network struct {
	Name       string `json:"name"`
	ChainID    int64  `json:"chainId"`
	Workerpool string `json:"workerpool"`
	// SMS is the secret management service of the network
	SMS string `json:"sms"`
	// Primary marks the default test profile
	Primary bool `json:"primary,omitempty"`
}

var networks = map[int64]Network{
	ChainArbitrumSepolia: {
		Name:       "arbitrum-sepolia",
		ChainID:    ChainArbitrumSepolia,
		Workerpool: "tee.arbitrum-sepolia.pools.iexec.eth",
		SMS:        "https://sms.arbitrum-sepolia-testnet.iex.ec",
		Primary:    true,
	},
	ChainBellecour: {
		Name:       "bellecour",
		ChainID:    ChainBellecour,
		Workerpool: "prod-v8-bellecour.main.pools.iexec.eth",
		SMS:        "https://sms.iex.ec",
	},
}

// PrimaryNetwork is the test profile unknown chains fall back to
func PrimaryNetwork() Network {
	return networks[ChainArbitrumSepolia]
}

// NetworkForChain selects the profile of chainID. Unrecognized chains fall
// back to the primary test profile and report false; callers should log it.
func NetworkForChain(chainID int64) (Network, bool) {
	if n, ok := networks[chainID]; ok {
		return n, true
	}
	return PrimaryNetwork(), false
}

// Networks lists the recognized profiles, primary first
func Networks() []Network {
	return []Network{networks[ChainArbitrumSepolia], networks[ChainBellecour]}
}

func (n Network) String() string {
	return fmt.Sprintf("%s (%d)", n.Name, n.ChainID)
}
