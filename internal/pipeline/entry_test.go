package pipeline

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/p4net/routerd/internal/devicepb"
)

func TestEncodeValues(t *testing.T) {
	require.Equal(t, []byte{0x00, 0x09}, EncodeUint16(9))
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x00}, EncodeUint32(256))
	require.Equal(t, []byte{10, 0, 0, 10}, EncodeAddr4(netip.MustParseAddr("10.0.0.10")))
}

func TestEntryBuild(t *testing.T) {
	desc := testDescription(t)

	entry, err := NewEntry(desc, "ipv4_lpm").
		MatchLPM("ipv4.dstAddr", EncodeAddr4(netip.MustParseAddr("10.0.0.10")), 24).
		Action("set_nhop").
		Param("nhop_ipv4", EncodeAddr4(netip.MustParseAddr("10.0.0.10"))).
		Param("port", EncodeUint16(1)).
		Build()
	require.NoError(t, err)

	expected := &devicepb.TableEntry{
		TableID: 1,
		Match: []*devicepb.FieldMatch{{
			FieldID: 1,
			LPM:     &devicepb.LPMMatch{Value: []byte{10, 0, 0, 10}, PrefixLen: 24},
		}},
		Action: &devicepb.TableAction{
			ActionID: 16,
			Params: []*devicepb.ActionParam{
				{ParamID: 1, Value: []byte{10, 0, 0, 10}},
				{ParamID: 2, Value: []byte{0, 1}},
			},
		},
	}
	require.Empty(t, cmp.Diff(expected, entry))
}

func TestEntryWithoutParams(t *testing.T) {
	desc := testDescription(t)

	entry, err := NewEntry(desc, "forward").
		MatchExact("routing_metadata.nhop_ipv4", EncodeUint32(0)).
		Action("_drop").
		Build()
	require.NoError(t, err)
	require.Equal(t, uint32(2), entry.TableID)
	require.Equal(t, uint32(19), entry.Action.ActionID)
	require.Empty(t, entry.Action.Params)
}

func TestEntryKeepsFirstError(t *testing.T) {
	desc := testDescription(t)

	_, err := NewEntry(desc, "no_such_table").
		MatchExact("also_no_such_field", nil).
		Action("set_nhop").
		Build()
	require.ErrorIs(t, err, ErrUnknownName)
	require.ErrorContains(t, err, "no_such_table")
}

func TestEntryRejects(t *testing.T) {
	desc := testDescription(t)

	_, err := NewEntry(desc, "forward").
		MatchExact("routing_metadata.nhop_ipv4", EncodeUint32(0)).
		Build()
	require.ErrorContains(t, err, "without action")

	_, err = NewEntry(desc, "forward").
		Param("dmac", nil).
		Build()
	require.ErrorContains(t, err, "before action")

	_, err = NewEntry(desc, "forward").
		Action("set_dmac").
		Param("nope", nil).
		Build()
	require.ErrorIs(t, err, ErrUnknownName)
}
