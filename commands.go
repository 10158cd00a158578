package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Go-routine-4595/sensorhub/adapters/gateway/display"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway/mqtt"
	"github.com/Go-routine-4595/sensorhub/adapters/logger"
	"github.com/Go-routine-4595/sensorhub/auth"
	"github.com/Go-routine-4595/sensorhub/client"
	"github.com/Go-routine-4595/sensorhub/model"
	"github.com/Go-routine-4595/sensorhub/simulator"
)

func newSimulateCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish random temperature, gas and light readings to the broker",
		RunE: func(_ *cobra.Command, _ []string) error {
			conf := loadConfig()
			log := logger.New(conf.LogLevel)

			wg := &sync.WaitGroup{}
			ctx, cancel := signalContext()
			defer func() {
				cancel()
				wg.Wait()
			}()

			channel, err := mqtt.NewMqtt(ctx, wg, conf.MqttConf, log)
			if err != nil {
				return err
			}
			sim := simulator.NewSimulator(conf.SimulatorConfig, channel, log)

			if once {
				var errs []error
				for _, t := range model.AllSensorTypes() {
					v, err := sim.Emit(t)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					fmt.Printf("%s %s\n", t.Topic(), v)
				}
				return errors.Join(errs...)
			}

			sim.Start(ctx, wg)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "publish one reading per sensor and exit")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		email    string
		password string
		sensor   string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Log in to a running sensorhub and print new readings as they arrive",
		RunE: func(_ *cobra.Command, _ []string) error {
			conf := loadConfig()
			log := logger.New(conf.LogLevel)
			if email != "" {
				conf.AgentConfig.Email = email
			}
			if password != "" {
				conf.AgentConfig.Password = password
			}

			ctx, cancel := signalContext()
			defer cancel()

			agent := client.NewAgent(conf.AgentConfig, log)
			defer agent.Stop()

			if conf.AgentConfig.Email != "" {
				if _, err := agent.Login(ctx, conf.AgentConfig.Email, conf.AgentConfig.Password); err != nil {
					return err
				}
				defer func() { _ = agent.Logout(context.Background()) }()
			}

			if sensor != "" {
				return printAnalytics(ctx, agent, sensor)
			}

			out := display.NewDisplay()
			agent.StartPolling(
				func(readings []model.Reading) {
					if err := out.Readings(readings); err != nil {
						log.Error().Err(err).Msg("failed to print readings")
					}
				},
				func(err error) {
					log.Debug().Err(err).Msg("poll failed")
				},
				func() {
					log.Warn().Msg("sensorhub unreachable, still retrying")
				},
			)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email (overrides AgentConfig.Email)")
	cmd.Flags().StringVar(&password, "password", "", "login password (overrides AgentConfig.Password)")
	cmd.Flags().StringVar(&sensor, "analytics", "", "print prediction, analysis and alerts for one sensor type and exit")
	return cmd
}

func printAnalytics(ctx context.Context, agent *client.Agent, sensor string) error {
	t, err := model.ParseSensorType(sensor)
	if err != nil {
		return err
	}

	predicted, err := agent.Predict(ctx, t)
	if err != nil {
		return err
	}
	analysis, err := agent.Analysis(ctx, t)
	if err != nil {
		return err
	}
	alerts, err := agent.Alerts(ctx, t)
	if err != nil {
		return err
	}

	if predicted != nil {
		fmt.Printf("%s moving average: %.2f\n", t, *predicted)
	} else {
		fmt.Printf("%s moving average: no data\n", t)
	}
	if analysis.PredictedValue != nil {
		fmt.Printf("%s forecast: %.2f (%s, confidence %.2f)\n", t, *analysis.PredictedValue, analysis.Trend, analysis.Confidence)
	} else {
		fmt.Printf("%s forecast: not enough data\n", t)
	}
	fmt.Printf("%s alert: %t, last values %v, limit %v\n", t, alerts.HasAlert, alerts.Values, alerts.Limit)
	return nil
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for the AuthConfig.Users section",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return errors.Join(err, errors.New("read password from stdin"))
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			conf := loadConfig()
			if err := conf.AuthConfig.Validate(); err != nil {
				return err
			}
			if _, err := auth.NewCredentials(conf.AuthConfig.Users); err != nil {
				return err
			}
			fmt.Printf("%s: ok (store %s, broker %s, http %s)\n",
				configPath, conf.StoreConfig.Type, conf.MqttConf.Connection, conf.ControllerConfig.Addr)
			return nil
		},
	}
}
