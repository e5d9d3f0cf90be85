package scenario_test

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixedtraffic/loopsim/scenario"
	"github.com/mixedtraffic/loopsim/utils/config"
)

func ringNet() config.Net {
	return config.Net{Length: 230, Lanes: 1, SpeedLimit: 35, Resolution: 40}
}

func ovmTypes(count int) []config.TypeSpec {
	return []config.TypeSpec{{
		Name:  "ovm",
		Count: count,
		CarFollowing: config.ControllerSpec{
			Model:  "ovm",
			Params: map[string]float64{"v_max": 15},
		},
		LaneChange: config.ControllerSpec{Model: "static"},
	}}
}

func TestBuildSequentialPlacement(t *testing.T) {
	sc, err := scenario.Build("ring", ringNet(), config.Initial{}, ovmTypes(22))
	require.NoError(t, err)
	require.Len(t, sc.Vehicles, 22)

	spacing := 230.0 / 22
	seen := map[string]bool{}
	for i, v := range sc.Vehicles {
		assert.False(t, seen[v.ID], "duplicate id %s", v.ID)
		seen[v.ID] = true
		assert.Equal(t, "ovm", v.Type)
		assert.Equal(t, 0, v.Lane)
		assert.InDelta(t, float64(i)*spacing, v.Pos, 1e-9)
	}
}

func TestBuildRoundRobinLanes(t *testing.T) {
	net := ringNet()
	net.Lanes = 2
	types := []config.TypeSpec{
		{Name: "human", Count: 3,
			CarFollowing: config.ControllerSpec{Model: "idm"},
			LaneChange:   config.ControllerSpec{Model: "static"}},
		{Name: "probe", Count: 3, InitialOffset: 10,
			CarFollowing: config.ControllerSpec{Model: "linear_ovm"},
			LaneChange:   config.ControllerSpec{Model: "static"}},
	}
	sc, err := scenario.Build("ring", net, config.Initial{}, types)
	require.NoError(t, err)
	require.Len(t, sc.Vehicles, 6)

	perLane := map[int]int{}
	for _, v := range sc.Vehicles {
		require.GreaterOrEqual(t, v.Lane, 0)
		require.Less(t, v.Lane, net.Lanes)
		perLane[v.Lane]++
		require.GreaterOrEqual(t, v.Pos, 0.0)
		require.Less(t, v.Pos, net.Length)
	}
	assert.Equal(t, 3, perLane[0])
	assert.Equal(t, 3, perLane[1])

	// the second type's block is shifted by its offset
	spacing := net.Length / 3
	probe, ok := sc.TypeSpec("probe")
	require.True(t, ok)
	assert.InDelta(t, 10, probe.InitialOffset, 1e-9)
	first := sc.Vehicles[3]
	assert.Equal(t, "probe_0", first.ID)
	assert.InDelta(t, float64(3/net.Lanes)*spacing+10, first.Pos, 1e-9)
}

func TestBuildShuffleDeterministic(t *testing.T) {
	a, err := scenario.Build("ring", ringNet(), config.Initial{Shuffle: true, Seed: 7}, ovmTypes(22))
	require.NoError(t, err)
	b, err := scenario.Build("ring", ringNet(), config.Initial{Shuffle: true, Seed: 7}, ovmTypes(22))
	require.NoError(t, err)
	assert.Equal(t, a.Vehicles, b.Vehicles, "same seed must place identically")

	c, err := scenario.Build("ring", ringNet(), config.Initial{Shuffle: true, Seed: 8}, ovmTypes(22))
	require.NoError(t, err)
	assert.NotEqual(t, a.Vehicles, c.Vehicles, "different seed must permute differently")
}

func TestBuildRejectsOverCapacity(t *testing.T) {
	// 230m / 7.5m per stopped vehicle = 30
	_, err := scenario.Build("ring", ringNet(), config.Initial{}, ovmTypes(31))
	require.Error(t, err)
	var ferr *config.FieldError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "types", ferr.Field)
	assert.Contains(t, ferr.Reason, "capacity")

	_, err = scenario.Build("ring", ringNet(), config.Initial{}, ovmTypes(30))
	assert.NoError(t, err)
}

func TestBuildRejectsBadGeometry(t *testing.T) {
	net := ringNet()
	net.Length = 0
	_, err := scenario.Build("ring", net, config.Initial{}, ovmTypes(1))
	var ferr *config.FieldError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "net.length", ferr.Field)

	_, err = scenario.Build("ring", ringNet(), config.Initial{}, nil)
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "types", ferr.Field)
}

func TestEdgeAt(t *testing.T) {
	sc, err := scenario.Build("ring", ringNet(), config.Initial{}, ovmTypes(4))
	require.NoError(t, err)

	edge, local := sc.EdgeAt(0)
	assert.Equal(t, "bottom", edge)
	assert.InDelta(t, 0, local, 1e-9)

	edge, local = sc.EdgeAt(230.0/4 + 5)
	assert.Equal(t, "right", edge)
	assert.InDelta(t, 5, local, 1e-9)

	edge, _ = sc.EdgeAt(229.9)
	assert.Equal(t, "left", edge)
}

func TestWriteArtifacts(t *testing.T) {
	net := ringNet()
	net.OutputPath = t.TempDir()
	sc, err := scenario.Build("ring", net, config.Initial{}, ovmTypes(22))
	require.NoError(t, err)

	cfgPath, err := sc.WriteArtifacts(config.Simulator{TimeStep: 0.1, EndTime: 3000})
	require.NoError(t, err)
	assert.Equal(t, path.Join(net.OutputPath, "ring.sumocfg"), cfgPath)

	for _, name := range []string{"ring.net.xml", "ring.rou.xml", "ring.sumocfg"} {
		data, err := os.ReadFile(path.Join(net.OutputPath, name))
		require.NoError(t, err, name)
		require.NotEmpty(t, data, name)
	}

	rou, err := os.ReadFile(path.Join(net.OutputPath, "ring.rou.xml"))
	require.NoError(t, err)
	s := string(rou)
	// capped vType and every vehicle present
	assert.Contains(t, s, `maxSpeed="15"`)
	assert.Equal(t, 22, strings.Count(s, "<vehicle "))

	cfg, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(cfg), `value="ring.net.xml"`)
	assert.Contains(t, string(cfg), `value="0.1"`)
}
