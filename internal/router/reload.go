package router

import (
	"context"
	"fmt"

	"github.com/p4net/routerd/internal/pipeline"
)

// reloadPipeline executes the atomic pipeline swap as one actor-serialized
// command, so no route or ARP mutation interleaves with it:
//
//  1. parse and validate the new configuration; a parse failure aborts the
//     whole update and the old description stays active,
//  2. switch the active description locally,
//  3. start the device update,
//  4. re-push default entries and every device-side route and interface
//     entry under the new identifiers (the device lost all table state;
//     controller-side state is reused unchanged),
//  5. end the device update.
//
// A device failure after step 2 leaves the local description switched; this
// inconsistency is reported, not rolled back.
func (m *Manager) reloadPipeline(ctx context.Context, raw []byte) error {
	desc, err := pipeline.Load(raw, pipeline.FormatJSON)
	if err != nil {
		return err
	}
	m.desc = desc

	if err := m.dev.UpdateStart(ctx, desc, raw); err != nil {
		m.fatalTransport(err)
		return fmt.Errorf("pipeline update start: %w", err)
	}

	m.writeDefaultEntries(ctx)
	m.replayDeviceEntries(ctx)

	if err := m.dev.UpdateEnd(ctx); err != nil {
		m.fatalTransport(err)
		return fmt.Errorf("pipeline update end: %w", err)
	}

	m.log.Infow("pipeline reloaded")
	return nil
}

// replayDeviceEntries rebuilds the device-side entries of all known routes
// and interfaces against the active description.
func (m *Manager) replayDeviceEntries(ctx context.Context) {
	for _, r := range m.routes {
		m.writeRouteEntry(ctx, r.nexthop, r.prefixLen, r.port)
	}
	for _, ifc := range m.ifaces {
		m.writeSourceMACEntry(ctx, ifc.Port, ifc.MAC)
	}
}
