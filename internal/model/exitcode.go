package model

// ExitCode is the process exit status. Values are stable so calling scripts
// can tell failure causes apart without parsing output.
type ExitCode int

const (
	ExitSuccess                       ExitCode = 0
	ExitUnknownOption                 ExitCode = 1
	ExitInvalidPort                   ExitCode = 2
	ExitRootFolderDoesNotExist        ExitCode = 3
	ExitFailedToDeleteCertificateFile ExitCode = 4
	ExitFailedToObtainAdminPrivileges ExitCode = 5
	ExitCertificateInstallationFailed ExitCode = 6
	ExitFailedToLoadCertificate       ExitCode = 7
	ExitInvalidExitTimeoutSecsValue   ExitCode = 8
	ExitListenFailed                  ExitCode = 9
	ExitCertificateGenerationFailed   ExitCode = 10
)

var exitCodeNames = map[ExitCode]string{
	ExitSuccess:                       "Success",
	ExitUnknownOption:                 "UnknownOption",
	ExitInvalidPort:                   "InvalidPort",
	ExitRootFolderDoesNotExist:        "RootFolderDoesNotExist",
	ExitFailedToDeleteCertificateFile: "FailedToDeleteCertificateFile",
	ExitFailedToObtainAdminPrivileges: "FailedToObtainAdminPrivileges",
	ExitCertificateInstallationFailed: "CertificateInstallationFailed",
	ExitFailedToLoadCertificate:       "FailedToLoadCertificate",
	ExitInvalidExitTimeoutSecsValue:   "InvalidExitTimeoutSecsValue",
	ExitListenFailed:                  "ListenFailed",
	ExitCertificateGenerationFailed:   "CertificateGenerationFailed",
}

func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}
	return "Unknown"
}
