// gomrstats runs the average and relative frequency jobs locally, on a
// hadoop cluster, or on Google Cloud Dataproc.
//
//	gomrstats average -i 'logs/*.txt' -o out/average
//	gomrstats relfreq -i corpus.txt --max-pairs=100000 --sink=sqlite:///tmp/relfreq.db
//	gomrstats relfreq -c job.yaml --submit-job
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
