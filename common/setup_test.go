package common_test

import (
	"path/filepath"
	"testing"

	"github.com/consensys/gnark/frontend"
	"github.com/mynextid/zk-kyc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type squareCircuit struct {
	X frontend.Variable `gnark:",secret"`
	Y frontend.Variable `gnark:",public"`
}

func (c *squareCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.X, c.X), c.Y)
	return nil
}

func TestInitCircuit(t *testing.T) {
	dir := t.TempDir()
	ccsPath := filepath.Join(dir, "compiled", "square.ccs")
	pkPath := filepath.Join(dir, "compiled", "square.pk")
	vkPath := filepath.Join(dir, "compiled", "square.vk")

	ccs, pk, vk, compiled, err := common.InitCircuit(ccsPath, pkPath, vkPath, false, &squareCircuit{})
	require.NoError(t, err)
	assert.True(t, compiled)
	assert.NotNil(t, ccs)
	assert.NotNil(t, pk)
	assert.NotNil(t, vk)

	// second call loads from disk
	_, _, _, compiled, err = common.InitCircuit(ccsPath, pkPath, vkPath, false, &squareCircuit{})
	require.NoError(t, err)
	assert.False(t, compiled)

	_, _, _, compiled, err = common.InitCircuit(ccsPath, pkPath, vkPath, true, &squareCircuit{})
	require.NoError(t, err)
	assert.True(t, compiled)
}

func TestInitCircuitRejectsTraversal(t *testing.T) {
	_, _, _, _, err := common.InitCircuit("../x.ccs", "a.pk", "a.vk", false, &squareCircuit{})
	assert.Error(t, err)
}
