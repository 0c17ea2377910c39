// Package ui renders the terminal front end: a status panel over the playback
// engine with a chunk-aware progress bar, preset hotkeys, and transport keys.
package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mkaleva/chunkcast/internal/api"
	"github.com/mkaleva/chunkcast/internal/config"
	"github.com/mkaleva/chunkcast/internal/engine"
	"github.com/mkaleva/chunkcast/internal/timing"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep   = 5
	SeekStep     = 10.0
	HeaderHeight = 3
	PanelHeight  = 9
	ToastTimeout = 3 * time.Second
)

// Presets the number keys map to. '0' always disables enhancement.
var presetHotkeys = []string{"warm", "bright", "vocal"}

type UI struct {
	app     *tview.Application
	player  *engine.Player
	config  *config.Config
	trackID string

	trackView    *tview.TextView
	statusView   *tview.TextView
	progressView *tview.TextView
	presetView   *tview.TextView
	toastView    *tview.TextView
	loadingText  *tview.TextView
	loadingView  *tview.Flex
	mainLayout   *tview.Flex
	pages        *tview.Pages

	mu            sync.Mutex
	position      float64
	track         *api.TrackMetadata
	regions       []timing.Region
	currentVolume int
	isMuted       bool
	toastTimer    *time.Timer

	unsubscribe []func()
}

func NewUI(player *engine.Player, cfg *config.Config, trackID string) *UI {
	ui := &UI{
		app:           tview.NewApplication(),
		player:        player,
		config:        cfg,
		trackID:       trackID,
		currentVolume: cfg.Volume,
	}

	player.SetVolume(cfg.Volume)
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if !ui.isMuted {
		ui.config.Volume = ui.currentVolume
	}
	ui.config.LastTrack = ui.trackID
	settings := ui.player.Settings()
	ui.config.Enhancement.Enabled = settings.Enabled
	if settings.Preset != "" {
		ui.config.Enhancement.Preset = settings.Preset
	}
	ui.config.Enhancement.Intensity = settings.Intensity
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) stop() {
	for _, off := range ui.unsubscribe {
		off()
	}
	ui.unsubscribe = nil
	ui.SaveConfig()
	ui.player.Destroy()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.setupMainScreen()
	ui.app.SetRoot(ui.pages, true)

	go ui.initAsync()

	return ui.app.Run()
}

func (ui *UI) initAsync() {
	ui.subscribeEvents()

	if err := ui.player.Initialize(context.Background(), ui.trackID); err != nil {
		ui.app.QueueUpdateDraw(func() {
			ui.loadingText.SetText(fmt.Sprintf("Failed to open stream: %v", extractErrorReason(err)))
		})
		return
	}

	track := ui.player.Track()
	regions, err := timing.Regions(track.Duration, track.ChunkInterval, track.ChunkDuration)
	if err != nil {
		log.Warn().Err(err).Msg("Stream has no crossfade regions")
	}

	ui.mu.Lock()
	ui.track = track
	ui.regions = regions
	ui.mu.Unlock()

	ui.app.QueueUpdateDraw(func() {
		ui.pages.SwitchToPage("main")
		ui.redraw()
	})

	if err := ui.player.Play(); err != nil {
		log.Error().Err(err).Msg("Failed to start playback")
		ui.app.QueueUpdateDraw(func() {
			ui.showToast(fmt.Sprintf("Playback failed: %s", extractErrorReason(err)))
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Opening stream...")

	ui.loadingView = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 0, 1, false)
}

func (ui *UI) setupMainScreen() {
	header := ui.createHeader()

	ui.trackView = tview.NewTextView().SetDynamicColors(true)
	ui.statusView = tview.NewTextView().SetDynamicColors(true)
	ui.progressView = tview.NewTextView().SetDynamicColors(true)
	ui.presetView = tview.NewTextView().SetDynamicColors(true)
	ui.toastView = tview.NewTextView().SetDynamicColors(true)

	panel := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.trackView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressView, 1, 0, false).
		AddItem(ui.statusView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.presetView, 1, 0, false).
		AddItem(ui.toastView, 1, 0, false)
	panel.SetBorder(true).SetTitle(" " + config.AppName + " ")

	help := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("space pause · ←/→ seek · +/- volume · m mute · 0-3 preset · q quit")

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(panel, PanelHeight, 0, false).
		AddItem(nil, 0, 1, false).
		AddItem(help, 1, 0, false)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, false).
		AddPage("loading", ui.loadingView, true, true)

	ui.app.SetInputCapture(ui.globalInputHandler)
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(textFlex, 1, 0, false).
		AddItem(nil, 1, 0, false)

	return headerFlex
}

func (ui *UI) subscribeEvents() {
	on := func(t engine.EventType, h func(engine.Event)) {
		ui.unsubscribe = append(ui.unsubscribe, ui.player.On(t, h))
	}

	on(engine.EventTimeUpdate, func(ev engine.Event) {
		go ui.app.QueueUpdateDraw(func() {
			ui.mu.Lock()
			ui.position = ev.Position
			ui.mu.Unlock()
			ui.redraw()
		})
	})

	on(engine.EventStateChange, func(ev engine.Event) {
		go ui.app.QueueUpdateDraw(ui.redraw)
	})

	on(engine.EventPresetSwitched, func(ev engine.Event) {
		go ui.app.QueueUpdateDraw(func() {
			ui.showToast(fmt.Sprintf("Preset %s in %dms", presetLabel(ev.NewPreset), ev.LatencyMs))
			ui.redraw()
		})
	})

	on(engine.EventUnderrun, func(ev engine.Event) {
		go ui.app.QueueUpdateDraw(func() {
			ui.showToast("Buffering...")
			ui.redraw()
		})
	})

	on(engine.EventError, func(ev engine.Event) {
		fatal := ev.Fatal
		reason := extractErrorReason(ev.Err)
		go ui.app.QueueUpdateDraw(func() {
			if fatal {
				ui.showToast("Stream error: " + reason)
			} else {
				ui.showToast("Hiccup: " + reason)
			}
			ui.redraw()
		})
	})
}

func (ui *UI) redraw() {
	ui.mu.Lock()
	pos := ui.position
	track := ui.track
	regions := ui.regions
	volume := ui.currentVolume
	muted := ui.isMuted
	ui.mu.Unlock()

	if track == nil {
		return
	}

	state := ui.player.State()
	settings := ui.player.Settings()

	ui.trackView.SetText(fmt.Sprintf(" [yellow]%s[-]  %s / %s",
		track.TrackID,
		formatDuration(pos),
		formatDuration(track.Duration)))

	_, _, width, _ := ui.progressView.GetInnerRect()
	if width <= 2 {
		width = 60
	}
	ui.progressView.SetText(" " + renderProgress(width-2, pos, track.Duration, regions))

	ui.statusView.SetText(" " + statusLine(state, volume, muted))
	ui.presetView.SetText(" " + presetLine(settings))
}

func (ui *UI) showToast(text string) {
	ui.toastView.SetText(" [orange]" + tview.Escape(text) + "[-]")

	ui.mu.Lock()
	if ui.toastTimer != nil {
		ui.toastTimer.Stop()
	}
	ui.toastTimer = time.AfterFunc(ToastTimeout, func() {
		ui.app.QueueUpdateDraw(func() {
			ui.toastView.SetText("")
		})
	})
	ui.mu.Unlock()
}

func (ui *UI) togglePlayback() {
	switch ui.player.State() {
	case engine.StatePlaying:
		if err := ui.player.Pause(); err != nil {
			log.Debug().Err(err).Msg("Pause rejected")
		}
	case engine.StatePaused, engine.StateReady:
		if err := ui.player.Play(); err != nil {
			ui.showToast("Cannot play: " + extractErrorReason(err))
		}
	}
	ui.redraw()
}

func (ui *UI) seekBy(delta float64) {
	if err := ui.player.Seek(ui.player.Position() + delta); err != nil {
		log.Debug().Err(err).Msg("Seek rejected")
		return
	}
	ui.mu.Lock()
	ui.position = ui.player.Position()
	ui.mu.Unlock()
	ui.redraw()
}

func (ui *UI) selectPreset(index int) {
	settings := ui.player.Settings()

	if index == 0 {
		settings.Enabled = false
		if err := ui.player.UpdateSettings(settings); err != nil {
			ui.showToast("Cannot disable enhancement: " + extractErrorReason(err))
		}
		ui.redraw()
		return
	}

	if index > len(presetHotkeys) {
		return
	}
	preset := presetHotkeys[index-1]

	settings.Enabled = true
	settings.Preset = preset
	if err := ui.player.UpdateSettings(settings); err != nil {
		ui.showToast(fmt.Sprintf("Cannot switch to %s: %s", preset, extractErrorReason(err)))
	}
	ui.redraw()
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		ui.mu.Unlock()

		ui.player.SetVolume(ui.currentVolume)
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", ui.currentVolume)
		ui.redraw()
		return
	}

	ui.currentVolume = config.ClampVolume(ui.currentVolume + delta)
	volume := ui.currentVolume
	ui.mu.Unlock()

	ui.player.SetVolume(volume)
	log.Debug().Msgf("Volume adjusted to %d%%", volume)
	ui.redraw()
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		log.Debug().Msgf("Unmuted, restored volume to %d%%", ui.currentVolume)
	} else {
		if ui.currentVolume == 0 {
			ui.config.Volume = config.DefaultVolume
		} else {
			ui.config.Volume = ui.currentVolume
		}
		ui.currentVolume = 0
		ui.isMuted = true
		log.Debug().Msgf("Muted, saved volume %d%%", ui.config.Volume)
	}
	volume := ui.currentVolume
	ui.mu.Unlock()

	ui.player.SetVolume(volume)
	ui.redraw()
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch r := event.Rune(); r {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			ui.togglePlayback()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '0', '1', '2', '3':
			ui.selectPreset(int(r - '0'))
			return nil
		}
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.seekBy(SeekStep)
		return nil
	case tcell.KeyLeft:
		ui.seekBy(-SeekStep)
		return nil
	}
	return event
}
