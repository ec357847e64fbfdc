//go:build !(amd64 && (linux || darwin || freebsd || netbsd || openbsd))

package jit

const nativeExecution = false

func run(p *Program) (int32, error) {
	return Emulate(p.Bytes())
}
