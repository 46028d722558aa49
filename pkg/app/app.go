package app

import (
	"net/url"

	"tsic/pkg/app/config"
	"tsic/pkg/mqtt"
	"tsic/pkg/raspberry"
	"tsic/pkg/tsic"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// gpio is the handler to the rpi gpio driver
	gpio raspberry.GPIO

	// tsic is the temperature channel of the sensor
	tsic *tsic.Channel

	// quit stops the emulated sensor
	quit chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	return &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt: mqtt.New(),

		quit: make(chan struct{}),
	}, nil
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()

	return app.tsic.Start(app.consumers()...)
}

// init initializes the application.
func (app *App) init() (err error) {
	if err = app.openSensor(); err != nil {
		return err
	}

	if err = app.mqtt.Connect(app.config.MQTT.Connection, app.config.MQTT.ClientID); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	// initDefaultRoutes should be always called last because it may access things like app.tsic
	// which must be initialized before in openSensor()
	app.initDefaultRoutes()

	return nil
}

// Close stops the sensor and releases all resources. It's safe to call Close on a partly initialized App.
func (app *App) Close() error {
	if app.quit != nil {
		close(app.quit)
		app.quit = nil
	}

	if app.tsic != nil {
		if err := app.tsic.Stop(); err != nil {
			debug.ErrorLog.Printf("stop %v: %v", app.tsic, err)
		}
	}

	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}

	if app.web != nil {
		_ = app.web.Shutdown()
	}

	if app.gpio != nil {
		return app.gpio.Close()
	}
	return nil
}
