package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{NewStore: func() rpxp.Store { return New() }})
}
