package hessian

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHessian(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Hessian Suite")
}
