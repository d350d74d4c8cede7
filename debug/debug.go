package debug

// DEBUG enables internal stack-discipline and variant assertions.
const DEBUG = true
