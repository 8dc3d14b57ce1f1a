package inmem

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/untibullet/teamfinder/internal/repository"
	"github.com/untibullet/teamfinder/internal/repository/storetest"
)

func TestStore(t *testing.T) {
	suite.Run(t, &storetest.StoreSuite{
		NewStore: func(*testing.T) repository.Store { return New() },
	})
}
