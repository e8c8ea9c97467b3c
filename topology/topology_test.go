package topology

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/hwres/arbiter/arbiter"
	"github.com/hwres/arbiter/resource"
)

func newTestEngine() *arbiter.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard))
	return arbiter.NewEngine(logger, 0)
}

const busTopology = `
devices:
  - name: root
    arbiters:
      - type: IoPort
        windows:
          - base: 0x0
            length: 0x1000
      - type: PhysicalAddress
        windows:
          - base: 0x80000000
            length: 0x100000
            characteristics: 0x1
            translation: -0x70000000
  - name: nic0
    parent: root
    configurations:
      - - type: IoPort
          min: 0x0
          max: 0x1000
          length: 0x20
          alignment: 0x10
          not_shareable: true
        - type: PhysicalAddress
          min: 0x0
          max: 0xffffffff
          length: 0x1000
          alignment: 0x1000
          characteristics: 0x1
  - name: uart0
    parent: root
    configurations:
      - - type: IoPort
          min: 0x3f8
          max: 0x400
          length: 0x8
    boot:
      - type: IoPort
        base: 0x3f8
        length: 0x8
`

func TestBuildAndResolve(t *testing.T) {
	engine := newTestEngine()

	doc, err := Load([]byte(busTopology))
	require.NoError(t, err)
	require.Len(t, doc.Devices, 3)

	devices, err := doc.Build(engine)
	require.NoError(t, err)

	root := devices["root"]
	require.NotNil(t, root)
	require.NotNil(t, root.Arbiter(resource.TypeIOPort))
	require.NotNil(t, root.Arbiter(resource.TypePhysicalAddress))

	uart := devices["uart0"]
	require.Equal(t, root, uart.Parent())

	st, err := engine.ProcessResourceRequirements(uart)
	require.Equal(t, resource.StatusOK, st)
	require.NoError(t, err)
	require.Equal(t, uint64(0x3f8), uart.Allocations()[0].Base())
	require.NotZero(t, uart.Allocations()[0].Flags()&resource.FlagBoot)

	// nic0 has no boot programming, so it is deferred once before any
	// space is handed out.
	nic := devices["nic0"]
	st, err = engine.ProcessResourceRequirements(nic)
	require.Equal(t, resource.StatusNotReady, st)
	require.NoError(t, err)
	require.Equal(t, []*arbiter.Device{nic}, engine.TakeDelayed())

	st, err = engine.ProcessResourceRequirements(nic)
	require.Equal(t, resource.StatusOK, st)
	require.NoError(t, err)
	require.Len(t, nic.Allocations(), 2)

	local := engine.ProcessorLocalResources(nic)
	require.Equal(t, uint64(0x10000000), local[1].Base)
}

func TestBuildOwnerReferences(t *testing.T) {
	const doc = `
devices:
  - name: root
  - name: dev0
    parent: root
    configurations:
      - - name: line
          type: InterruptLine
          min: 0x5
          max: 0xa
          length: 1
        - type: InterruptVector
          max: 0x100
          length: 1
          owner: line
`
	parsed, err := Load([]byte(doc))
	require.NoError(t, err)

	devices, err := parsed.Build(newTestEngine())
	require.NoError(t, err)

	cfg := devices["dev0"].Configurations()[0]
	require.Len(t, cfg, 2)
	require.Equal(t, cfg[0], cfg[1].Owning)
	require.Nil(t, cfg[0].Owning)
}

func TestBuildAlternatives(t *testing.T) {
	const doc = `
devices:
  - name: root
  - name: dev0
    parent: root
    configurations:
      - - type: IoPort
          min: 0x100
          max: 0x200
          length: 0x40
          alternatives:
            - min: 0x300
              max: 0x400
              length: 0x40
`
	parsed, err := Load([]byte(doc))
	require.NoError(t, err)

	devices, err := parsed.Build(newTestEngine())
	require.NoError(t, err)

	req := devices["dev0"].Configurations()[0][0]
	require.Len(t, req.Alternatives, 1)
	// Alternatives inherit the primary's type when they leave it unset.
	require.Equal(t, resource.TypeIOPort, req.Alternatives[0].Type)
	require.Equal(t, uint64(0x300), req.Alternatives[0].Min)
}

func TestBuildRejectsUnknownParent(t *testing.T) {
	const doc = `
devices:
  - name: dev0
    parent: missing
`
	parsed, err := Load([]byte(doc))
	require.NoError(t, err)

	_, err = parsed.Build(newTestEngine())
	require.Error(t, err)
}

func TestBuildRejectsUnknownType(t *testing.T) {
	const doc = `
devices:
  - name: root
    arbiters:
      - type: NotAResource
`
	parsed, err := Load([]byte(doc))
	require.NoError(t, err)

	_, err = parsed.Build(newTestEngine())
	require.Error(t, err)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load([]byte("devices:\n  - name: root\n    colour: blue\n"))
	require.Error(t, err)
}

func TestLoadRejectsMalformedDocument(t *testing.T) {
	_, err := Load([]byte("devices: {not: a list}"))
	require.Error(t, err)
}
