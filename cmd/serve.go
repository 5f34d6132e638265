package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/config"
	"github.com/reputation-systems/forum-application/controller"
	http_no "github.com/reputation-systems/forum-application/http"
)

// serveCommand runs the forum api and keeps the published state fresh by
// polling the explorer.
func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the forum api and poll the explorer for new comments, spam flags and profiles.",
		Run: func(_ *cobra.Command, _ []string) {
			a := setup("forum-svc")
			defer a.close()

			config.Watch(func(f config.Forum) {
				a.svc.SetSpamLimit(f.SpamLimit)
				a.svc.SetComputeDepth(f.ComputeDepth)
			})

			router := controller.NewRouter(a.svc, a.cfg.RateLimit)
			server := controller.NewServer(router, a.cfg.Port)

			if err := server.Start(); err != nil {
				log.Error("failed to start server", zap.Error(err), zap.Int("port", a.cfg.Port))
				os.Exit(1)
			}
			a.svc.Start()

			http_no.StopOnSignal(a.svc, server)

			log.Info("service started...",
				zap.Int("port", a.cfg.Port),
				zap.String("discussion", a.cfg.Discussion),
			)

			a.wg.Add(1)
			go a.svc.Wait(&a.wg)
			go server.Wait()

			a.wg.Wait()
		},
	}
}
