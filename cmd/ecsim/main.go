// Command ecsim is a host-buildable simulation of the embedded
// controller core: it loads the board configuration, wires every
// service together over fakes standing in for real silicon, and runs
// until interrupted, printing what each subsystem observes the way
// cmd/boardtest prints onboard sensor readings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jangala-dev/ecfw-core/battery"
	"github.com/jangala-dev/ecfw-core/boardconfig"
	"github.com/jangala-dev/ecfw-core/bus"
	"github.com/jangala-dev/ecfw-core/cfu"
	"github.com/jangala-dev/ecfw-core/charger"
	"github.com/jangala-dev/ecfw-core/comms"
	"github.com/jangala-dev/ecfw-core/deferred"
	"github.com/jangala-dev/ecfw-core/espi"
	"github.com/jangala-dev/ecfw-core/hid"
	"github.com/jangala-dev/ecfw-core/hw"
	"github.com/jangala-dev/ecfw-core/hw/ltc4015"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/nvram"
	"github.com/jangala-dev/ecfw-core/powerpolicy"
	"github.com/jangala-dev/ecfw-core/registry"
	"github.com/jangala-dev/ecfw-core/resetblock"
	"github.com/jangala-dev/ecfw-core/typec"
	"github.com/jangala-dev/ecfw-core/x/timex"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("[ecsim] loading board configuration ...")
	raw, ok := boardconfig.EmbeddedConfigLookup("reference")
	if !ok {
		fmt.Println("[ecsim] no embedded board document named \"reference\"")
		os.Exit(1)
	}
	cfg, err := boardconfig.Load(raw)
	if err != nil {
		fmt.Println("[ecsim] board document rejected:", err)
		os.Exit(1)
	}

	fmt.Println("[ecsim] opening NVRAM ...")
	store := newMemStore()
	offsets := make([]int, len(cfg.NVRAM.Sections))
	for i, s := range cfg.NVRAM.Sections {
		offsets[i] = s.Offset
	}
	table := nvram.NewTable(cfg.NVRAM.Valid, offsets)
	layout, err := nvram.Open(table, store)
	if err != nil {
		fmt.Println("[ecsim] NVRAM layout rejected:", err)
		os.Exit(1)
	}
	for i, s := range cfg.NVRAM.Sections {
		sec, _ := layout.Section(i)
		fmt.Printf("[ecsim] nvram section %q at offset %d = 0x%08x\n", s.Name, s.Offset, sec.Read())
	}

	resetSys := resetblock.NewSystem(func() {
		fmt.Println("[ecsim] platform reset hook fired; exiting")
		os.Exit(0)
	})
	batteryBlocker := resetblock.NewBlocker("battery")
	if err := resetSys.Register(batteryBlocker); err != nil {
		fmt.Println("[ecsim] register reset blocker:", err)
		os.Exit(1)
	}
	// WaitForReset runs against Background, not ctx: ctx is what the OS
	// signal cancels, and a blocker that gave up the moment shutdown
	// started would defeat the point of holding the reset open.
	go batteryBlocker.WaitForReset(context.Background(), func(ctx context.Context) {
		fmt.Println("[ecsim] battery: flushing state before reset")
	})

	b := bus.NewBus(16)
	fabric := comms.NewFabric()

	mm := espi.NewMemoryMap(1, 0, 0, 0)
	espi.NewBridge(fabric, mm)

	policy := powerpolicy.NewService(fabric, powerpolicy.ProviderPolicy{
		LowPower:    powerpolicy.PowerCapability{VoltageMV: 5000, CurrentMA: 500},
		HighPower:   powerpolicy.PowerCapability{VoltageMV: 20000, CurrentMA: 3000},
		ThresholdMW: 15000,
	})

	fmt.Println("[ecsim] detecting LTC4015 charger/fuel-gauge IC ...")
	ltcCfg := ltc4015.Config{
		Address:         ltc4015.AddressDefault,
		RSNSB_uOhm:      10000,
		RSNSI_uOhm:      10000,
		TargetsWritable: true,
	}
	var fgTimeout time.Duration
	for _, fg := range cfg.Battery.FuelGauges {
		if fg.ID == 1 {
			fgTimeout = fg.CommandTimeout
		}
	}
	adapter, err := hw.NewLTC4015Adapter(newFakeLTC4015Bus(), ltcCfg, fgTimeout)
	if err != nil {
		fmt.Println("[ecsim] LTC4015 adapter:", err)
		os.Exit(1)
	}

	battSvc := battery.NewService(battery.Config{})
	battDev := battery.NewDevice(adapter, cfg.Battery.StateMachineTimeout)
	if err := battSvc.RegisterDevice(battDev); err != nil {
		fmt.Println("[ecsim] register battery device:", err)
		os.Exit(1)
	}

	chargerWrapper := charger.NewWrapper(adapter, cfg.Charger.CommandTimeout, 16, 500)
	var chargerNode registry.Node[powerpolicy.ChargerNotifier]
	if err := policy.RegisterCharger(&chargerNode, chargerWrapper); err != nil {
		fmt.Println("[ecsim] register charger notifier:", err)
		os.Exit(1)
	}

	typecSvc := typec.NewService(cfg.Typec.CommandTimeout)
	typecCtrl := newFakeTypecController()
	typecWrapper, err := typec.NewWrapper(1, typecCtrl, policy, typecSvc, 0, time.Second, cfg.Typec.CommandTimeout)
	if err != nil {
		fmt.Println("[ecsim] typec wrapper:", err)
		os.Exit(1)
	}
	typecSvc.RegisterController(typecWrapper)

	cfuSvc := cfu.NewService(b)
	components := make(map[cfu.ComponentId]*cfu.Component, len(cfg.CFU.Components))
	for _, c := range cfg.CFU.Components {
		writer := &fakeCFUWriter{name: fmt.Sprintf("component-%d", c.ID)}
		comp := cfu.NewComponent(c.ID, cfu.FwVersion{Major: 1}, cfu.FwVersion{Major: 1}, writer)
		components[c.ID] = comp
	}
	for _, c := range cfg.CFU.Components {
		if len(c.Subcomponents) > 0 {
			components[c.ID].SetSubcomponents(c.Subcomponents)
		}
	}
	for _, comp := range components {
		if err := cfuSvc.Register(comp); err != nil {
			fmt.Println("[ecsim] register cfu component:", err)
			os.Exit(1)
		}
	}

	hidCh := deferred.NewChannel[hid.Request, hid.Response]()
	interrupt := hid.NewInterruptBridge(fakeHIDLines{})
	hidHost := hid.NewHost(fakeHIDBus{}, hid.RegisterFile{
		HidDescAddr:    0x0001,
		ReportDescAddr: 0x0002,
		InputAddr:      0x0003,
		OutputAddr:     0x0004,
		CommandAddr:    0x0005,
		DataAddr:       0x0006,
	}, hidCh, interrupt, cfg.HID.ResponseTimeout, cfg.HID.InterByteTimeout)

	fmt.Println("[ecsim] starting services ...")
	go battSvc.Run(ctx)
	go typecWrapper.Run(ctx)
	go hidHost.Run(ctx)
	for _, comp := range components {
		go cfuSvc.Run(ctx, comp)
	}

	go runScenario(ctx, chargerWrapper, typecCtrl)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			printStatus(battDev, chargerWrapper)
		case <-ctx.Done():
			fmt.Println("[ecsim] shutdown requested; running reset handshake")
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := resetSys.Reset(rctx); err != nil {
				fmt.Println("[ecsim] reset handshake failed:", err)
			}
			cancel()
			return
		}
	}
}

// runScenario drives the fake hardware through a simple init/attach
// sequence so the demo has something to observe.
func runScenario(ctx context.Context, cw *charger.Wrapper, tc *fakeTypecController) {
	if !waitOrDone(ctx, 500*time.Millisecond) {
		return
	}
	if err := cw.HandleCommand(ctx, charger.Command{Kind: charger.CmdInitRequest}); err != nil {
		xlog.Warnf("ecsim", "charger init: %v", err)
	}
	cw.HandleHWEvent(charger.HWInitialized)

	if !waitOrDone(ctx, 500*time.Millisecond) {
		return
	}
	cw.HandleHWEvent(charger.HWPsuAttached)

	sourceCap := powerpolicy.PowerCapability{VoltageMV: 20000, CurrentMA: 3000}
	tc.setStatus(typec.PortStatus{
		ConnectionPresent:       true,
		AvailableSourceContract: &sourceCap,
	}, typec.PortEventFlags(typec.EventPlugInsertedOrRemoved))
}

func printStatus(battDev *battery.Device, cw *charger.Wrapper) {
	fmt.Printf("[ecsim] t=%dms battery stage=%s charger state=%s\n", timex.NowMs(), battDev.Stage(), cw.State())
}
