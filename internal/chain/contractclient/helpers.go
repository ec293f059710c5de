package contractclient

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

func newStringReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

func errUnknownEvent(name string) error {
	return fmt.Errorf("contractclient: unknown event %q", name)
}

func buildFilterQuery(address common.Address, topic0 common.Hash, fromBlock, toBlock *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic0}},
		FromBlock: fromBlock,
		ToBlock:   toBlock,
	}
}
