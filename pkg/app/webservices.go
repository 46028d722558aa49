package app

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// maxMeasureTimeout limits the timeout of a measure request.
const maxMeasureTimeout = time.Minute

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleMeasurement returns the last measurement of the sensor.
//  {"degreeCelsius":21.5,"timestamp":"2026-10-01T12:00:00.123+02:00"}
func (app *App) HandleMeasurement() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request measurement")

		return ctx.JSON(app.tsic.Measurement())
	}
}

// HandleMeasure waits for the next measurement of the sensor.
// The query parameter timeout (e.g. /measure?timeout=500ms) defaults to the --timeout flag.
// The status is 504 if no measurement is received in time.
func (app *App) HandleMeasure() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request measure")

		timeout := app.config.Flag.Timeout
		if s := ctx.Query("timeout"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 || d > maxMeasureTimeout {
				return fiber.NewError(http.StatusBadRequest, "invalid timeout "+s)
			}
			timeout = d
		}

		m := app.tsic.MeasureOnce(timeout)
		if m.IsUndefined() {
			ctx.Status(http.StatusGatewayTimeout)
		}
		return ctx.JSON(m)
	}
}
