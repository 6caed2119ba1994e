// Command designctl works with design documents offline: it renders them to images,
// checks them, and answers contain-fit questions.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
