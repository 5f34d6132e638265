package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/forum"
)

type scoredThread struct {
	forum.Comment
	Score   int            `json:"score"`
	Replies []scoredThread `json:"replies"`
}

func withScores(comments []forum.Comment) []scoredThread {
	out := make([]scoredThread, len(comments))
	for i, c := range comments {
		out[i] = scoredThread{Comment: c, Score: forum.Score(c), Replies: withScores(c.Replies)}
	}
	return out
}

func exitOn(err error, msg string, fields ...zap.Field) {
	if err != nil {
		log.Error(msg, append(fields, zap.Error(err))...)
		os.Exit(1)
	}
}

func threadsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "threads [discussion]",
		Short: "Print the comment forest of a discussion with scores.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := setup("forum-cli")
			defer a.close()

			ctx := context.Background()
			if len(args) == 1 {
				a.svc.State().Discussion.Set(args[0])
			}

			err := a.svc.LoadThreads(ctx)
			exitOn(err, "failed to load threads", zap.String("discussion", a.svc.State().Discussion.Get()))

			exitOn(printJSON(withScores(a.svc.Threads())), "failed to print threads")
		},
	}
}

func spamCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "spam <id>",
		Short: "Print the number of spam flags on a comment and whether it is hidden.",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := setup("forum-cli")
			defer a.close()

			count, spam, err := a.svc.SpamCount(context.Background(), args[0])
			exitOn(err, "failed to count spam flags", zap.String("box_id", args[0]))

			exitOn(printJSON(map[string]interface{}{
				"id":        args[0],
				"flags":     count,
				"spamLimit": a.svc.SpamLimit(),
				"isSpam":    spam,
			}), "failed to print spam count")
		},
	}
}

func profileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Print the reputation profile of the configured wallet.",
		Run: func(_ *cobra.Command, _ []string) {
			a := setup("forum-cli")
			defer a.close()

			proof, err := a.svc.LoadProfile(context.Background())
			exitOn(err, "failed to load profile")

			exitOn(printJSON(proof), "failed to print profile")
		},
	}
}

func reputationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reputation <tokenId> <target>",
		Short: "Compute the reputation a proof gives to a target object.",
		Args:  cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			a := setup("forum-cli")
			defer a.close()

			// partial catalogues still score, failures are logged by the service
			_, _ = a.svc.LoadProofs(context.Background())

			value, err := a.svc.Reputation(args[0], args[1])
			exitOn(err, "failed to compute reputation", zap.String("token_id", args[0]))

			exitOn(printJSON(map[string]interface{}{
				"tokenId":    args[0],
				"target":     args[1],
				"depth":      a.svc.ComputeDepth(),
				"reputation": value,
			}), "failed to print reputation")
		},
	}
}
